package app

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrForbidden            = errors.New("forbidden")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUsernameExists       = errors.New("username already exists")
	ErrEmailExists          = errors.New("email already exists")
	ErrInvalidCredential    = errors.New("invalid username or password")
	ErrIndexEnqueue         = errors.New("index job enqueue failed")
	ErrUserNotFound         = errors.New("user not found")
)
