package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dukex/querygate/pkg/auth"
	"github.com/dukex/querygate/pkg/credentials"
	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/screen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)

	err := app.Run(context.Background(), append([]string{"querygate"}, args...))

	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestTokenCommand(t *testing.T) {
	t.Parallel()

	out, err := runApp(t, "", "token", "--jwt-secret", "s3cret", "--id", "mgr-1", "--role", "manager", "--team", "payments")
	require.NoError(t, err)

	authenticator, err := auth.NewAuthenticator("s3cret")
	require.NoError(t, err)

	actor, err := authenticator.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "mgr-1", actor.ID)
	assert.Equal(t, models.RoleManager, actor.Role)
	assert.Equal(t, "payments", actor.Team)

	_, err = runApp(t, "", "token", "--jwt-secret", "s3cret", "--id", "x", "--role", "root")
	require.Error(t, err)
}

func TestEncryptCredentialsCommand(t *testing.T) {
	t.Parallel()

	out, err := runApp(t, "", "encrypt-credentials", "--credential-secret", "k", "--username", "app", "--password", "pw")
	require.NoError(t, err)

	codec, err := credentials.NewAESCodec("k")
	require.NoError(t, err)

	creds, err := codec.Decrypt(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, models.Credentials{Username: "app", Password: "pw"}, creds)
}

func TestScreenCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		stdin       string
		args        []string
		destructive bool
		wantErr     bool
	}{
		{name: "stdin select", stdin: "SELECT * FROM orders", args: []string{"screen"}},
		{name: "stdin delete", stdin: "DELETE FROM orders WHERE id = 1", args: []string{"screen", "-"}, destructive: true},
		{
			name:        "file document",
			args:        []string{"screen", "--database-kind", "document", writeFile(t, "q.js", "db.orders.deleteMany({})")},
			destructive: true,
		},
		{name: "bad kind", args: []string{"screen", "--database-kind", "graph"}, wantErr: true},
		{name: "bad submission", args: []string{"screen", "--submission-kind", "macro"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := runApp(t, tt.stdin, tt.args...)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)

			var result screen.Result
			require.NoError(t, json.Unmarshal([]byte(out), &result))
			assert.Equal(t, tt.destructive, result.IsDestructive)
		})
	}
}

func TestCheckInstancesCommand(t *testing.T) {
	t.Parallel()

	valid := writeFile(t, "instances.yaml", "instances:\n  - name: orders\n    kind: relational\n    host: orders.internal\n")

	out, err := runApp(t, "", "check-instances", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "orders\trelational\torders.internal")
	assert.Contains(t, out, "1 instances OK")

	invalid := writeFile(t, "instances.yaml", "instances:\n  - name: a\n    kind: graph\n    host: h\n")

	_, err = runApp(t, "", "check-instances", invalid)
	require.Error(t, err)

	_, err = runApp(t, "", "check-instances")
	require.ErrorIs(t, err, errMissingArgument)
}

func TestParseResultsCommand(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "result.csv", "id,total\n1,10.5\n2,\n")

	out, err := runApp(t, "", "parse-results", path)
	require.NoError(t, err)
	assert.Equal(t, "columns: id, total\nrows: 2\n", out)

	out, err = runApp(t, "id\n", "parse-results", "-")
	require.NoError(t, err)
	assert.Equal(t, "columns: id\nrows: 0\n", out)

	_, err = runApp(t, "", "parse-results")
	require.ErrorIs(t, err, errMissingArgument)
}
