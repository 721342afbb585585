// internal/messaging/errors.go

package messaging

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("not a participant in this conversation")
	ErrInvalidKind          = errors.New("invalid message kind")
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrMediaRequired        = errors.New("media url is required for this message kind")
	ErrUnexpectedMedia      = errors.New("text messages cannot carry media")
	ErrFileTooLarge         = errors.New("file exceeds maximum upload size")
	ErrFileTypeNotAllowed   = errors.New("file type not allowed")
	ErrForeignObject        = errors.New("object does not belong to this store or user")
	ErrBrokerClosed         = errors.New("broker closed")
)
