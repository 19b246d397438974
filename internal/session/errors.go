package session

import "errors"

var (
	// ErrPlaceholderResponse marks the hosted proxy's hard-coded greeting
	// body, which means the planning request never reached the model.
	ErrPlaceholderResponse = errors.New("planning proxy returned a placeholder response")

	// ErrInvalidResponse marks a backend payload that is not a JSON object
	// and therefore cannot be normalized into an agent message.
	ErrInvalidResponse = errors.New("invalid planning service response")

	// ErrUnsupportedContent marks a message content variant this client
	// does not know how to render or validate.
	ErrUnsupportedContent = errors.New("unsupported message content type")

	// ErrUnsupportedQuestionKind marks a question subtype this client does
	// not know how to render or validate.
	ErrUnsupportedQuestionKind = errors.New("unsupported question type")
)
