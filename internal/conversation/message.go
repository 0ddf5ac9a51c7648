// Package conversation defines the transcript data model shared by the
// window manager, the summarizers and the storage journal.
package conversation

import (
	"fmt"
	"strings"
)

// Role tags the kind of a transcript entry.
type Role string

// Role constants.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleError     Role = "error"
)

// Roles lists every accepted role in canonical order.
var Roles = []Role{RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleError}

// Reserved metadata keys.
const (
	MetaConversationSummary = "isConversationSummary"
	MetaSummaryID           = "summaryId"
	MetaEvictedCount        = "evictedCount"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleError:
		return true
	default:
		return false
	}
}

// ParseRole converts a raw string into a Role.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Message is one transcript entry.
type Message struct {
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsConversationSummary reports whether the message is a synthesized summary entry.
func (m Message) IsConversationSummary() bool {
	if m.Metadata == nil {
		return false
	}
	v, ok := m.Metadata[MetaConversationSummary].(bool)
	return ok && v
}

// Validate checks the message role.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, string(m.Role))
	}
	return nil
}
