package conversation

import "errors"

// Conversation errors.
var (
	// ErrNilState indicates a nil thread state was supplied.
	ErrNilState = errors.New("conversation: thread state is nil")

	// ErrInvalidRole indicates a message carries an unknown role.
	ErrInvalidRole = errors.New("conversation: invalid role")

	// ErrMissingMessages indicates a serialized state without a messages array.
	ErrMissingMessages = errors.New("conversation: messages is missing or null")
)
