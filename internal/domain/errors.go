package domain

import "errors"

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrUnknownRoom     = errors.New("room not joined")
	ErrProjectNotFound = errors.New("project not found")
	ErrNotRegistered   = errors.New("connection not registered")
	ErrPeerClosed      = errors.New("peer connection closed")
	ErrQueueFull       = errors.New("peer send queue full")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired or not valid yet")
	ErrInvalidSubject  = errors.New("invalid subject")
)
