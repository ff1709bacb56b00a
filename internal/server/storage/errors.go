package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this phone already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrSessionNotFound indicates that login session was not found
	ErrSessionNotFound = errors.New("login session not found")

	// ErrSessionStateConflict indicates that session is not in the step required by the operation
	ErrSessionStateConflict = errors.New("login session state conflict")

	// ErrCorruptSession indicates that stored session row has an impossible combination of fields
	ErrCorruptSession = errors.New("corrupt login session")

	// ErrOTPAttemptsExhausted indicates that there were no attempts left to decrement
	ErrOTPAttemptsExhausted = errors.New("otp attempts exhausted")

	// ErrOTPChallengeChanged indicates that the otp challenge was replaced concurrently
	ErrOTPChallengeChanged = errors.New("otp challenge changed")
)
