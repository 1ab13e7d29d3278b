package config

import "errors"

var (
	// ErrInvalidProcessors is returned when the processor count is below 1
	ErrInvalidProcessors = errors.New("processors must be greater than 0")

	// ErrInvalidEpsilon is returned when the epsilon is not positive
	ErrInvalidEpsilon = errors.New("epsilon must be greater than 0")

	// ErrInvalidWorkers is returned when the worker count is below 1
	ErrInvalidWorkers = errors.New("workers must be greater than 0")

	// ErrUnknownIIP is returned when the IIP name is not recognized
	ErrUnknownIIP = errors.New("unknown idle-insertion policy")
)
