package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInvalidRoomCode      = errors.New("invalid or expired room code")
	ErrRoomFull             = errors.New("room is full")
	ErrNotHost              = errors.New("only the host may perform this action")
	ErrTimerAlreadyRunning  = errors.New("timer already running")
	ErrTimerNotRunning      = errors.New("timer not running")
	ErrItemNotFound         = errors.New("shop item not found")
	ErrAlreadyOwned         = errors.New("item already owned")
	ErrInsufficientPoints   = errors.New("not enough points")
	ErrInvalidCheatCode     = errors.New("invalid code")
	ErrInternalServer       = errors.New("internal server error")
)
