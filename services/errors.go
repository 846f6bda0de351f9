package services

import (
	"errors"
	"fmt"
)

var (
	ErrPersistence        = errors.New("persistence failure")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")

	ErrSelfRequest      = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends   = errors.New("already friends")
	ErrRequestExists    = errors.New("friend request already sent")
	ErrRequestNotFound  = errors.New("friend request not found")
	ErrForbiddenSender  = errors.New("sender does not match the connection user")
	ErrForbiddenRoom    = errors.New("room does not include the connection user")
	ErrNotInRoom        = errors.New("not a member of the room")
	ErrRelayUnavailable = errors.New("relay is shut down")
)

// ValidationError 参数校验失败
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
