package services

import "errors"

// Task store errors
var (
	ErrTaskExists   = errors.New("task: id already registered")
	ErrTaskNotFound = errors.New("task: not found")
)

// Panel errors
var (
	ErrIllegalTransition = errors.New("task: action not allowed in current status")
)

// Bridge errors
var (
	ErrBridgeNotStarted = errors.New("bridge: transport not started")
)
