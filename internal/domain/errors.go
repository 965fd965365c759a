package domain

import "errors"

var (
	// ErrSessionActive is returned when a room already has a running quiz.
	ErrSessionActive = errors.New("quiz session already active in this room")
	// ErrSessionNotFound is returned when a room has no running quiz.
	ErrSessionNotFound = errors.New("no active quiz session in this room")
	// ErrInvalidAnswer indicates the submitted answer is not one of A-D.
	ErrInvalidAnswer = errors.New("answer must be A, B, C, or D")
	// ErrQuizNotFound indicates the quiz content could not be located.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrBackendUnavailable indicates the learning backend could not be reached.
	ErrBackendUnavailable = errors.New("quiz backend unavailable")
	// ErrBackend indicates the learning backend rejected the request.
	ErrBackend = errors.New("quiz backend error")
)
