package room

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrDuplicateRoomCode = errors.New("room code already in use")
	ErrNotHost           = errors.New("not host")
	ErrRoundNotActive    = errors.New("round not active")
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	ErrInvalidGuess      = errors.New("invalid guess")
	ErrStaleHostAction   = errors.New("host action no longer valid")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
