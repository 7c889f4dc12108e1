package agent

import "errors"

// ErrPermissionDenied is returned when a conversation does not belong to the
// caller. An absent conversation reads the same way so existence of other
// users' conversations is not leaked.
var ErrPermissionDenied = errors.New("permission denied")

// ErrInvalidMessage is returned for an empty or blank user message.
var ErrInvalidMessage = errors.New("message must not be empty")

// ErrToolExecution prefixes recorded tool failures so the audit trail
// separates execution failures from gateway or persistence errors. It never
// aborts a turn.
var ErrToolExecution = errors.New("tool execution failed")
