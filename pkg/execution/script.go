package execution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/sandbox"
	"github.com/dukex/querygate/pkg/scripts"
)

// DefaultScriptTimeout bounds one script run.
const DefaultScriptTimeout = 60 * time.Second

// ErrScriptNotFound is returned when the script artifact is missing.
var ErrScriptNotFound = errors.New("script file not found")

// ScriptSource reads stored script artifacts.
type ScriptSource interface {
	Exists(ref string) bool
	Read(ref string) ([]byte, error)
}

// Script runs an uploaded script in the sandbox with the target's
// connection context injected.
type Script struct {
	source      ScriptSource
	credentials *CredentialResolver
	timeout     time.Duration
	logger      *slog.Logger
}

func NewScript(logger *slog.Logger, source ScriptSource, creds *CredentialResolver, timeout time.Duration) *Script {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}

	return &Script{
		source:      source,
		credentials: creds,
		timeout:     timeout,
		logger:      logger.With("module", "script_executor"),
	}
}

// Execute runs the script stored under ref.
func (s *Script) Execute(ctx context.Context, desc models.ConnectionDescriptor, database, ref string) (*models.ScriptResult, error) {
	if !s.source.Exists(ref) {
		return nil, ErrScriptNotFound
	}

	source, err := s.source.Read(ref)
	if err != nil {
		if errors.Is(err, scripts.ErrScriptNotFound) {
			return nil, ErrScriptNotFound
		}

		return nil, err
	}

	creds, err := s.credentials.Resolve(desc)
	if err != nil {
		return nil, err
	}

	injected := map[string]any{
		"connection": connectionContext(desc, database, creds),
		"database":   database,
	}

	out, err := sandbox.Run(ctx, string(source), injected, s.timeout)
	if err != nil {
		s.logger.WarnContext(ctx, "Script failed", "script", ref, "logs", len(out.Logs), "error", err)

		return nil, err
	}

	return &models.ScriptResult{Result: out.Value, Logs: out.Logs, Errors: out.Errors}, nil
}

// connectionContext is the plain-data `connection` global. Relational
// targets get discrete fields, document targets a connection string.
func connectionContext(desc models.ConnectionDescriptor, database string, creds models.Credentials) any {
	if desc.Kind == models.DatabaseKindDocument {
		return MongoURI(desc, creds)
	}

	port := desc.Port
	if port == 0 {
		port = 5432
	}

	sslMode := desc.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return map[string]any{
		"host":     desc.Host,
		"port":     port,
		"database": database,
		"user":     creds.Username,
		"password": creds.Password,
		"ssl_mode": sslMode,
	}
}
