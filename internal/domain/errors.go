package domain

import "errors"

var (
	ErrValidation           = errors.New("invalid input")
	ErrInvalidRange         = errors.New("invalid date range")
	ErrDateConflict         = errors.New("room already booked for the selected dates")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyApproved      = errors.New("booking is already approved")
	ErrAlreadyCancelled     = errors.New("booking is already cancelled")
	ErrNoBookingsFound      = errors.New("no bookings found")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrSerializationFailure = errors.New("serialization failure")
)
