package models

import "errors"

// Errors returned by room operations. Everything except ErrUnauthorized is
// swallowed at the network boundary.
var (
	ErrInvalidMove   = errors.New("invalid move")
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomConcluded = errors.New("room already concluded")
	ErrUnauthorized  = errors.New("unauthorized")

	ErrGamePaused  = errors.New("game is paused")
	ErrGameStarted = errors.New("game already started")
	ErrRoomFull    = errors.New("room is full")
	ErrNotInRoom   = errors.New("player is not in the room")

	ErrPlayerNotFound = errors.New("player not found")
)
