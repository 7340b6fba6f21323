package execution

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/sandbox"
	"github.com/dukex/querygate/pkg/scripts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScriptStore(t *testing.T, source string) (*scripts.Store, string) {
	t.Helper()

	store, err := scripts.NewStore(t.TempDir(), 0)
	require.NoError(t, err)

	ref, err := store.Save("job.js", []byte(source))
	require.NoError(t, err)

	return store, ref
}

func TestScript_InjectsRelationalConnection(t *testing.T) {
	t.Parallel()

	store, ref := newScriptStore(t, `
console.log("connecting to " + connection.host);
console.warn("dry run");
return {user: connection.user, port: connection.port, ssl: connection.ssl_mode, db: database};`)

	defaults := &models.Credentials{Username: "svc", Password: "pw"}
	executor := NewScript(slog.Default(), store, NewCredentialResolver(nil, defaults), time.Second)

	desc := models.ConnectionDescriptor{Name: "pg", Kind: models.DatabaseKindRelational, Host: "pg.internal"}

	result, err := executor.Execute(context.Background(), desc, "orders", ref)
	require.NoError(t, err)

	b, err := json.Marshal(result.Result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"svc","port":5432,"ssl":"disable","db":"orders"}`, string(b))
	assert.Equal(t, []string{"connecting to pg.internal"}, result.Logs)
	assert.Equal(t, []string{"dry run"}, result.Errors)
}

func TestScript_InjectsDocumentConnectionString(t *testing.T) {
	t.Parallel()

	store, ref := newScriptStore(t, `return connection;`)
	executor := NewScript(slog.Default(), store, NewCredentialResolver(nil, nil), time.Second)

	desc := models.ConnectionDescriptor{Name: "m", Kind: models.DatabaseKindDocument, ConnectionString: "mongodb://m:27017/"}

	result, err := executor.Execute(context.Background(), desc, "events", ref)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://m:27017/", result.Result)
}

func TestScript_MissingArtifact(t *testing.T) {
	t.Parallel()

	store, _ := newScriptStore(t, `return 1;`)
	executor := NewScript(slog.Default(), store, NewCredentialResolver(nil, nil), time.Second)

	_, err := executor.Execute(context.Background(), mongoDescriptor, "events", "gone.js")
	require.ErrorIs(t, err, ErrScriptNotFound)
	assert.Equal(t, "script file not found", err.Error())
}

func TestScript_Timeout(t *testing.T) {
	t.Parallel()

	store, ref := newScriptStore(t, `for (;;) {}`)
	executor := NewScript(slog.Default(), store, NewCredentialResolver(nil, nil), 50*time.Millisecond)

	_, err := executor.Execute(context.Background(), mongoDescriptor, "events", ref)
	require.ErrorIs(t, err, sandbox.ErrTimeout)
}
