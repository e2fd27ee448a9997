package cache

import (
	"errors"
	"fmt"
	"reflect"
)

// ReadErrorMessage is the user facing message of every ReadError.
const ReadErrorMessage = "Unable to read from cache"

// Sentinel errors, matched with errors.Is against the typed errors below.
var (
	ErrUnserializableArgument = errors.New("cache: unserializable argument")
	ErrUnserializableValue    = errors.New("cache: unserializable return value")
	ErrCacheRead              = errors.New("cache: read failed")
	ErrInvalidConfiguration   = errors.New("cache: invalid configuration")
)

// UnserializableArgumentError reports a call argument that has no stable
// byte representation and therefore cannot take part in a cache key.
type UnserializableArgumentError struct {
	Position int
	Path     string
	Kind     reflect.Kind
	Reason   string
}

func (e *UnserializableArgumentError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cache: argument %d is not hashable at %s: %s", e.Position, e.Path, e.Reason)
	}
	return fmt.Sprintf("cache: argument %d is not hashable at %s: values of kind %s have no stable representation",
		e.Position, e.Path, e.Kind)
}

// Is implements errors.Is support.
func (e *UnserializableArgumentError) Is(target error) bool {
	return target == ErrUnserializableArgument
}

// ReadError is returned when a stored entry exists but cannot be decoded.
// Corruption is surfaced to the caller instead of being treated as a miss.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return ReadErrorMessage }

// Unwrap returns the underlying I/O or decoding error.
func (e *ReadError) Unwrap() error { return e.Err }

// Is implements errors.Is support.
func (e *ReadError) Is(target error) bool {
	return target == ErrCacheRead
}

// InvalidConfigurationError represents a configuration validation error.
type InvalidConfigurationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *InvalidConfigurationError) Error() string {
	if e.Field == "Persist" {
		return e.Message
	}
	return "config error in field " + e.Field + ": " + e.Message
}

// Is implements errors.Is support.
func (e *InvalidConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}
