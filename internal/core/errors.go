package core

import "errors"

// Errors returned by event handlers. They never reach clients; the hub
// logs them at debug level and drops the event.
var (
	ErrNotIdentified = errors.New("connection not identified")
	ErrNotInRoom     = errors.New("not in room")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrChatDisabled  = errors.New("chat disabled in room")
	ErrHubStopped    = errors.New("hub stopped")
)
