package execution

import (
	"errors"
	"fmt"

	"github.com/dukex/querygate/pkg/credentials"
	"github.com/dukex/querygate/pkg/models"
)

// ErrMissingCredentials is returned when an instance has no usable username.
var ErrMissingCredentials = errors.New("missing credentials for instance")

// CredentialResolver decrypts an instance's credential reference right before
// use. Nothing is cached.
type CredentialResolver struct {
	codec    credentials.Codec
	defaults *models.Credentials
}

// NewCredentialResolver creates a resolver. defaults is used for instances
// without a username and should only be set when explicitly enabled.
func NewCredentialResolver(codec credentials.Codec, defaults *models.Credentials) *CredentialResolver {
	return &CredentialResolver{codec: codec, defaults: defaults}
}

// Resolve returns the credentials for desc, possibly empty.
func (r *CredentialResolver) Resolve(desc models.ConnectionDescriptor) (models.Credentials, error) {
	var creds models.Credentials

	if desc.CredentialRef != "" {
		if r == nil || r.codec == nil {
			return creds, fmt.Errorf("instance %s has a credential reference but no codec is configured", desc.Name)
		}

		decrypted, err := r.codec.Decrypt(desc.CredentialRef)
		if err != nil {
			return creds, fmt.Errorf("failed to decrypt credentials for instance %s: %w", desc.Name, err)
		}

		creds = decrypted
	}

	if creds.Empty() && r != nil && r.defaults != nil {
		creds = *r.defaults
	}

	return creds, nil
}

// Require is Resolve but fails when no username is available.
func (r *CredentialResolver) Require(desc models.ConnectionDescriptor) (models.Credentials, error) {
	creds, err := r.Resolve(desc)
	if err != nil {
		return creds, err
	}

	if creds.Empty() {
		return creds, ErrMissingCredentials
	}

	return creds, nil
}
