// Package retention decides how long offloaded results stay retrievable and
// removes their objects once they expire.
package retention

import (
	"time"

	"github.com/dukex/querygate/pkg/models"
)

// DefaultWindow is how long an offloaded artifact stays retrievable.
const DefaultWindow = 30 * 24 * time.Hour

// Availability is the retention state of an execution's artifact.
type Availability struct {
	// Available is true when an artifact was recorded and has not expired.
	Available bool `json:"csv_available"`
	// Expired is true once the window has passed, whether or not the object still exists.
	Expired   bool       `json:"csv_expired"`
	ExpiresAt *time.Time `json:"csv_expires_at,omitempty"`
}

// Policy applies a fixed retention window measured from the execution's creation.
type Policy struct {
	window time.Duration
}

func NewPolicy(window time.Duration) Policy {
	if window <= 0 {
		window = DefaultWindow
	}

	return Policy{window: window}
}

// Window returns the retention window.
func (p Policy) Window() time.Duration {
	return p.window
}

// ExpiresAt returns when an artifact created at createdAt expires.
func (p Policy) ExpiresAt(createdAt time.Time) time.Time {
	return createdAt.Add(p.window)
}

// Evaluate reports the artifact state at now. It never touches storage.
func (p Policy) Evaluate(execution *models.Execution, now time.Time) Availability {
	if execution == nil || !execution.IsTruncated {
		return Availability{}
	}

	expiresAt := p.ExpiresAt(execution.CreatedAt)
	expired := now.After(expiresAt)

	return Availability{
		Available: execution.HasArtifact() && !expired,
		Expired:   expired,
		ExpiresAt: &expiresAt,
	}
}
