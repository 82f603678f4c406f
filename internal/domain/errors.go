package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates a precondition violation knowable without
	// a network call: an empty shipment, a missing parent link, a webhook
	// payload failing a validation gate.
	ErrInvalidArgument = errors.New("invalid argument")
)
