package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/domainwatch/internal/config"
	"github.com/ignite/domainwatch/internal/domain"
	"github.com/ignite/domainwatch/internal/worker"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...)
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func useTempDB(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "domains.db"))
	t.Setenv("REDIS_URL", "")
	t.Setenv("SMTP_HOST", "")
}

// Keep these exit codes stable: they matter in scripts.
func TestRun_NoArgs_Exit2(t *testing.T) {
	code, _, _ := runCLI(t)
	assert.Equal(t, 2, code)
}

func TestRun_WrongArgCount_Exit(t *testing.T) {
	code, _, _ := runCLI(t, "register", "only-domain.com")
	assert.NotEqual(t, 0, code)
}

func TestSuggest_PrintsPool(t *testing.T) {
	code, out, _ := runCLI(t, "suggest", "foo", "-n", "2")
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"foo.com", "foo.net", "foo.org", "foo.io", "foo.co", "foo.ai"}, lines)
}

func TestRegisterAndPending(t *testing.T) {
	useTempDB(t)

	code, out, stderr := runCLI(t, "register", "Example.xyz", "A@B.com")
	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasPrefix(out, "Notification registered\t"))

	code, out, _ = runCLI(t, "register", "example.xyz", "a@b.com")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "Already registered for this domain\t"))

	code, out, _ = runCLI(t, "pending", "--json")
	require.Equal(t, 0, code)
	var pending []domain.Registration
	require.NoError(t, json.Unmarshal([]byte(out), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "example.xyz", pending[0].Domain)
	assert.Equal(t, "a@b.com", pending[0].Email)

	code, out, _ = runCLI(t, "pending")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "example.xyz")
}

func TestPending_EmptyIsArray(t *testing.T) {
	useTempDB(t)
	code, out, _ := runCLI(t, "pending", "--json")
	require.Equal(t, 0, code)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestPoll_EmptyStore(t *testing.T) {
	useTempDB(t)
	code, out, stderr := runCLI(t, "poll")
	require.Equal(t, 0, code, stderr)

	var stats worker.CycleStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, worker.CycleStats{}, stats)
}

func TestMigrate(t *testing.T) {
	useTempDB(t)
	code, out, _ := runCLI(t, "migrate", "--list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "migrations/sqlite/001_registrations.sql")

	code, out, _ = runCLI(t, "migrate")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Done: 1 OK (sqlite)")
}

func TestMigrate_DynamoRejected(t *testing.T) {
	t.Setenv("DATABASE_URL", "dynamodb://registrations?region=us-east-1")
	code, _, stderr := runCLI(t, "migrate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "dynamodb")
}

func TestSuggestionLimit(t *testing.T) {
	cfg := config.SuggestionsConfig{DefaultMax: 6, MaxAllowed: 20}

	assert.Equal(t, 6, suggestionLimit(cfg, 0, false), "unset flag uses the configured default")
	assert.Equal(t, 0, suggestionLimit(cfg, 0, true), "explicit zero disables suggestions")
	assert.Equal(t, 3, suggestionLimit(cfg, 3, true))
	assert.Equal(t, 20, suggestionLimit(cfg, 500, true))
	assert.Equal(t, 0, suggestionLimit(cfg, -4, true))
}
