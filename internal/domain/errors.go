package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNoIdentity        = errors.New("no authenticated identity")
	ErrRegistryNotEmpty  = errors.New("subscription registry not empty")
	ErrWipeFailed        = errors.New("wipe failed")
	ErrMalformedDocument = errors.New("malformed document")
	ErrInvalidInput      = errors.New("invalid input")
)
