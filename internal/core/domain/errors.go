package domain

import "errors"

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrConflict               = errors.New("conflict")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrInsufficientResource   = errors.New("insufficient resource")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotFound               = errors.New("not found")
	ErrTransportFailure       = errors.New("transport failure")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrBackpressure           = errors.New("backpressure")
)
