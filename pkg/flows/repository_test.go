package flows_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newRepository(t *testing.T, dir string) *flows.FileRepository {
	t.Helper()

	return flows.NewFileRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), dir)
}

const signupFlow = `{
  "id": "signup",
  "name": "Signup",
  "account_id": "acct-1",
  "trigger": {"kind": "webhook", "settings": {"url": "http://*/hooks/signup"}},
  "tasks": [
    {"task_id": "start", "kind": "trigger"},
    {"task_id": "greet", "kind": "action", "plugin_id": "format_text", "input": {"text": "{{tasks.start.name}}", "operation": "uppercase"}}
  ]
}`

func TestFileRepository_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "signup.json", signupFlow)
	writeFile(t, dir, "nested/nightly.json", `{
	  "id": "nightly",
	  "name": "Nightly",
	  "trigger": {"kind": "schedule", "settings": {"cron": "0 0 0 * * *"}},
	  "tasks": []
	}`)
	writeFile(t, dir, "notes.txt", "not a flow")

	repo := newRepository(t, dir)

	count, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	all, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "nightly", all[0].ID)
	assert.Equal(t, "signup", all[1].ID)

	flow, err := repo.Get(context.Background(), "signup")
	require.NoError(t, err)
	require.Len(t, flow.Tasks, 2)
	assert.Equal(t, models.ActionKindAction, flow.Tasks[1].Kind)
	assert.Equal(t, "signup", flow.Tasks[1].FlowID)
	assert.Equal(t, "acct-1", flow.Tasks[1].AccountID)
}

func TestFileRepository_SkipsInvalidFlows(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.json", signupFlow)
	writeFile(t, dir, "broken.json", `{"id": `)
	writeFile(t, dir, "noname.json", `{"id": "x", "trigger": {"kind": "empty"}}`)
	writeFile(t, dir, "badcron.json", `{"id": "y", "name": "Y", "trigger": {"kind": "schedule", "settings": {"cron": "whenever"}}}`)
	writeFile(t, dir, "dup.json", signupFlow)

	repo := newRepository(t, dir)

	count, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	invalid := repo.Invalid()
	assert.Len(t, invalid, 4)

	for _, file := range []string{"broken.json", "noname.json", "badcron.json", "good.json"} {
		require.Contains(t, invalid, file)
		assert.ErrorIs(t, invalid[file], flows.ErrInvalidFlow)
	}
}

func TestFileRepository_GetUnknown(t *testing.T) {
	repo := newRepository(t, t.TempDir())

	_, err := repo.Load(context.Background())
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, flows.IsFlowNotFound(err))
}

func TestFileRepository_MissingDirectory(t *testing.T) {
	repo := newRepository(t, filepath.Join(t.TempDir(), "absent"))

	count, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFileRepository_LoadsYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "digest.yaml", `
id: digest
name: Digest
account_id: acct-2
trigger:
  kind: manual
tasks:
  - task_id: summary
    kind: action
    plugin_id: format_text
    input:
      text: "{{tasks.trigger.title}}"
`)
	writeFile(t, dir, "broken.yml", "id: [unclosed")

	repo := newRepository(t, dir)

	count, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	flow, err := repo.Get(context.Background(), "digest")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerKindManual, flow.Trigger.Kind)
	require.Len(t, flow.Tasks, 1)
	assert.Equal(t, "acct-2", flow.Tasks[0].AccountID)
	assert.Equal(t, map[string]any{"text": "{{tasks.trigger.title}}"}, flow.Tasks[0].Input)

	assert.ErrorIs(t, repo.Invalid()["broken.yml"], flows.ErrInvalidFlow)
}
