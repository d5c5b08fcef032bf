package chatbot

import "errors"

var (
	ErrChatbotUnavailable = errors.New("chatbot service unavailable")
	ErrInvalidResponse    = errors.New("invalid response from chatbot")
	ErrMissingSession     = errors.New("chatbot session id is required")
	ErrEmptyMessage       = errors.New("chat message is empty")
)
