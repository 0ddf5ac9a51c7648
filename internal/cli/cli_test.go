package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convwin/internal/config"
	"convwin/internal/conversation"
	"convwin/internal/provider"
)

type cliEnv struct {
	dir        string
	configPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfgPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("storage:\n  path: %s\nlog:\n  level: error\nsummarizer:\n  kind: static\n",
		filepath.Join(dir, "journal.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))

	t.Cleanup(config.Reset)
	t.Cleanup(provider.Reset)
	return &cliEnv{dir: dir, configPath: cfgPath}
}

func (e *cliEnv) run(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	config.Reset()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append([]string{"--config", e.configPath, "--env-file", ""}, args...))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (e *cliEnv) writeThread(t *testing.T, id string, n int) string {
	t.Helper()
	path := filepath.Join(e.dir, id+".json")
	data, err := json.Marshal(sampleThread(id, n))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func sampleThread(id string, n int) conversation.ThreadState {
	state := conversation.ThreadState{Metadata: conversation.ThreadMetadata{ThreadID: id}}
	roles := []conversation.Role{conversation.RoleUser, conversation.RoleAssistant, conversation.RoleTool}
	for i := 0; i < n; i++ {
		state.Messages = append(state.Messages, conversation.Message{
			Role:    roles[i%len(roles)],
			Content: fmt.Sprintf("turn %d", i),
		})
	}
	return state
}

func decodeState(t *testing.T, s string) conversation.ThreadState {
	t.Helper()
	var state conversation.ThreadState
	require.NoError(t, json.Unmarshal([]byte(s), &state))
	return state
}

func TestReplay_File(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeThread(t, "t-file", 25)

	stdout, stderr, err := env.run(t, nil, "replay", path)
	require.NoError(t, err)

	state := decodeState(t, stdout)
	assert.Len(t, state.Messages, 20)
	assert.True(t, state.Messages[0].IsConversationSummary())
	assert.Contains(t, state.Messages[0].Content, "user messages compressed")
	require.Len(t, state.Metadata.ConversationSummaries, 1)
	assert.Equal(t, 6, state.Metadata.ConversationSummaries[0].EvictedCount)

	assert.Contains(t, stderr, "window 25 -> 20 messages, evicted 6")
}

func TestReplay_StdinAndOverrides(t *testing.T) {
	env := newCLIEnv(t)
	data, err := json.Marshal(sampleThread("t-stdin", 12))
	require.NoError(t, err)

	stdout, _, err := env.run(t, bytes.NewReader(data), "replay", "-", "--max-window", "8", "--min-batch", "2", "-q")
	require.NoError(t, err)

	state := decodeState(t, stdout)
	assert.Len(t, state.Messages, 8)
}

func TestReplay_BelowBound(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeThread(t, "t-small", 3)

	stdout, stderr, err := env.run(t, nil, "replay", path)
	require.NoError(t, err)
	assert.Len(t, decodeState(t, stdout).Messages, 3)
	assert.Contains(t, stderr, "nothing to do")
}

func TestReplay_OutFile(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeThread(t, "t-out", 22)
	out := filepath.Join(env.dir, "compacted.json")

	stdout, _, err := env.run(t, nil, "replay", path, "--out", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(decodeState(t, string(data)).Messages), 20)
}

func TestReplay_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		args    []string
		wantErr string
	}{
		{"invalid role", `{"messages":[{"role":"bot","content":"x"}]}`, nil, "invalid role"},
		{"malformed json", `{"messages":`, nil, "decode state"},
		{"missing messages", `{}`, nil, "messages is missing or null"},
		{"null messages", `{"messages":null,"metadata":{"threadId":"t"}}`, nil, "messages is missing or null"},
		{"unknown summarizer", `{"messages":[]}`, []string{"--summarizer", "magic"}, "unknown summarizer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t)
			path := filepath.Join(env.dir, "state.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, _, err := env.run(t, nil, append([]string{"replay", path}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReplay_MissingFile(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run(t, nil, "replay", filepath.Join(env.dir, "nope.json"))
	assert.ErrorContains(t, err, "open state")
}

func TestReplayJournalThenSummaries(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeThread(t, "t-journal", 24)

	_, _, err := env.run(t, nil, "replay", path, "--journal", "-q")
	require.NoError(t, err)

	stdout, _, err := env.run(t, nil, "summaries", "t-journal", "--json")
	require.NoError(t, err)

	var records []conversation.SummaryRecord
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "t-journal", records[0].ThreadID)
	assert.Equal(t, 24, records[0].WindowBefore)

	stdout, _, err = env.run(t, nil, "summaries", "t-journal")
	require.NoError(t, err)
	assert.Contains(t, stdout, "SEQ")
	assert.Contains(t, stdout, "24->20")

	stdout, _, err = env.run(t, nil, "summaries", "unknown-thread")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No summaries for thread unknown-thread")

	stdout, _, err = env.run(t, nil, "summaries", "unknown-thread", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(stdout))
}

func TestReplayJournal_RepeatedRunsAdvanceSequence(t *testing.T) {
	env := newCLIEnv(t)
	path := env.writeThread(t, "t-again", 24)

	for want := 1; want <= 2; want++ {
		stdout, _, err := env.run(t, nil, "replay", path, "--journal", "-q")
		require.NoError(t, err)
		state := decodeState(t, stdout)
		require.Len(t, state.Metadata.ConversationSummaries, 1)
		assert.Equal(t, want, state.Metadata.ConversationSummaries[0].Sequence)
	}

	stdout, _, err := env.run(t, nil, "summaries", "t-again", "--json")
	require.NoError(t, err)

	var records []conversation.SummaryRecord
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Sequence)
	assert.Equal(t, 2, records[1].Sequence)
}

func TestJournalDisabled(t *testing.T) {
	env := newCLIEnv(t)
	content := "storage:\n  enabled: false\nlog:\n  level: error\nsummarizer:\n  kind: static\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0600))

	_, _, err := env.run(t, nil, "summaries", "t-1")
	assert.ErrorIs(t, err, ErrJournalDisabled)

	_, _, err = env.run(t, nil, "replay", env.writeThread(t, "t-off", 30), "--journal")
	assert.ErrorIs(t, err, ErrJournalDisabled)
}

func TestCLIContext_JournalReopensAfterClose(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Enabled: true}}
	c := &CLIContext{Config: cfg, StoragePath: filepath.Join(t.TempDir(), "j.db")}

	first, err := c.Journal()
	require.NoError(t, err)
	again, err := c.Journal()
	require.NoError(t, err)
	assert.Same(t, first, again)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	reopened, err := c.Journal()
	require.NoError(t, err)
	assert.NotSame(t, first, reopened)
	require.NoError(t, c.Close())
}

func TestVersionCmd(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, nil, "version", "--json")
	require.NoError(t, err)

	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, 2, info.JournalSchema)
	assert.NotEmpty(t, info.GoVersion)

	stdout, _, err = env.run(t, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "convwin "))
	assert.Contains(t, stdout, "journal schema v2")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CONVWIN_TEST_DOTENV=from-file\n"), 0600))
	t.Setenv("CONVWIN_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("CONVWIN_TEST_DOTENV"))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("CONVWIN_TEST_DOTENV"))

	assert.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env")))
	assert.NoError(t, loadEnvFile(""))
}

func TestConfigCmd(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("CONVWIN_OPENAI_API_KEY", "sk-secret-value")

	stdout, _, err := env.run(t, nil, "config", "get", "window.max_window")
	require.NoError(t, err)
	assert.Equal(t, "20", strings.TrimSpace(stdout))

	stdout, _, err = env.run(t, nil, "config", "set", "window.max_window", "32")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Set window.max_window = 32")

	stdout, _, err = env.run(t, nil, "config", "get", "window.max_window")
	require.NoError(t, err)
	assert.Equal(t, "32", strings.TrimSpace(stdout))

	_, _, err = env.run(t, nil, "config", "set", "window.no_such_key", "1")
	assert.ErrorContains(t, err, "unknown config key")

	_, _, err = env.run(t, nil, "config", "get", "nope.nope")
	assert.ErrorContains(t, err, "key not found")

	stdout, _, err = env.run(t, nil, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "window.max_window = 32")
	assert.Contains(t, stdout, "openai.api_key = sk***********ue")
	assert.NotContains(t, stdout, "sk-secret-value")

	stdout, _, err = env.run(t, nil, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, env.configPath, strings.TrimSpace(stdout))
}

func TestConfigSetSecretFromStdin(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, strings.NewReader("sk-ant-xyz\n"), "config", "set", "anthropic.api_key")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Set anthropic.api_key = sk******yz")

	stdout, _, err = env.run(t, nil, "config", "get", "anthropic.api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk******yz", strings.TrimSpace(stdout))

	_, _, err = env.run(t, strings.NewReader("  \n"), "config", "set", "openai.api_key")
	assert.ErrorContains(t, err, "cannot be empty")

	_, _, err = env.run(t, nil, "config", "set", "window.max_window")
	assert.ErrorContains(t, err, "missing value")
}

func TestConfigInitCmd(t *testing.T) {
	env := newCLIEnv(t)
	target := filepath.Join(env.dir, "fresh", "config.yaml")

	_, _, err := env.run(t, nil, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	config.Reset()
	var stdout bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"--config", target, "--env-file", "", "config", "init"})
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, stdout.String(), "Wrote "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_window: 20")
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abcd", "****"},
		{"abcdef", "ab**ef"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskValue(tt.in))
	}
}
