package session

import "errors"

var (
	// ErrSessionBusy is returned when another turn holds the session.
	ErrSessionBusy = errors.New("session is busy")
	// ErrEmptyMessage is returned for blank utterances.
	ErrEmptyMessage = errors.New("message is empty")
)
