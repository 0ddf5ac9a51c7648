package conversation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{" Assistant ", RoleAssistant, false},
		{"TOOL", RoleTool, false},
		{"error", RoleError, false},
		{"system", RoleSystem, false},
		{"function", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidRole))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessage_IsConversationSummary(t *testing.T) {
	assert.False(t, Message{Role: RoleUser}.IsConversationSummary())
	assert.False(t, Message{Role: RoleAssistant, Metadata: map[string]any{MetaConversationSummary: "true"}}.IsConversationSummary())
	assert.True(t, Message{Role: RoleAssistant, Metadata: map[string]any{MetaConversationSummary: true}}.IsConversationSummary())
}

func TestThreadState_Validate(t *testing.T) {
	var nilState *ThreadState
	assert.ErrorIs(t, nilState.Validate(), ErrNilState)

	state := &ThreadState{Messages: []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: "robot", Content: "beep"},
	}}
	err := state.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.Contains(t, err.Error(), "message 1")

	assert.NoError(t, (&ThreadState{}).Validate())
}

func TestThreadState_JSONRoundTripKeepsWireNames(t *testing.T) {
	raw := `{
		"messages": [{"role": "user", "content": "hello"}],
		"metadata": {"threadId": "t-1", "llmLocal": true, "llmModel": "llama3.2", "conversationSummaries": []}
	}`

	var state ThreadState
	require.NoError(t, json.Unmarshal([]byte(raw), &state))
	assert.Equal(t, "t-1", state.Metadata.ThreadID)
	assert.True(t, state.Metadata.LLMLocal)
	assert.Equal(t, "llama3.2", state.Metadata.LLMModel)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, RoleUser, state.Messages[0].Role)

	out, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"conversationSummaries":[]`)
}

func TestDecodeState(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr error
	}{
		{"empty array", `{"messages":[]}`, 0, nil},
		{"two messages", `{"messages":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]}`, 2, nil},
		{"missing field", `{"metadata":{"threadId":"t"}}`, 0, ErrMissingMessages},
		{"empty object", `{}`, 0, ErrMissingMessages},
		{"null field", `{"messages":null}`, 0, ErrMissingMessages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := DecodeState(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, state)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, state.Messages)
			assert.Len(t, state.Messages, tt.wantLen)
		})
	}

	_, err := DecodeState(strings.NewReader(`{"messages":`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingMessages)
}

func TestDigest(t *testing.T) {
	a := []Message{{Role: RoleUser, Content: "x"}, {Role: RoleAssistant, Content: "y"}}
	b := []Message{{Role: RoleAssistant, Content: "y"}, {Role: RoleUser, Content: "x"}}

	assert.Empty(t, Digest(nil))
	assert.Len(t, Digest(a), 64)
	assert.Equal(t, Digest(a), Digest(append([]Message(nil), a...)))
	assert.NotEqual(t, Digest(a), Digest(b))

	// role and content boundaries are part of the fingerprint
	c := []Message{{Role: RoleUser, Content: "ab"}}
	d := []Message{{Role: RoleUser, Content: "a"}, {Role: RoleUser, Content: "b"}}
	assert.NotEqual(t, Digest(c), Digest(d))
}

func TestCountRoles(t *testing.T) {
	counts := CountRoles([]Message{
		{Role: RoleUser}, {Role: RoleUser}, {Role: RoleTool},
	})
	assert.Equal(t, 2, counts[RoleUser])
	assert.Equal(t, 1, counts[RoleTool])
	assert.Zero(t, counts[RoleAssistant])
}
