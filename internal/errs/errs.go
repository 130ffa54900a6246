// Package errs provides the error classification shared across the engine:
// every per-file, per-connection, or per-channel failure is tagged with a
// class so callers (retry, channel loops) can decide what to do with it
// without string-matching.
package errs

import (
	"errors"
	"fmt"
)

// Class says whether an error is worth retrying, is a configuration
// mistake, or should stop the affected channel outright.
type Class int

const (
	// Transient errors may succeed if the operation is retried.
	Transient Class = iota
	// Invalid errors are caused by bad input or configuration.
	Invalid
	// Fatal errors are unrecoverable for the affected channel.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Invalid:
		return "invalid"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind names the seven error categories from the error handling design:
// ConfigError, BindError, FramingError, TimeoutError, TransformError,
// IOWriteError, PersistenceError.
type Kind string

const (
	KindConfig      Kind = "ConfigError"
	KindBind        Kind = "BindError"
	KindFraming     Kind = "FramingError"
	KindTimeout     Kind = "TimeoutError"
	KindTransform   Kind = "TransformError"
	KindIOWrite     Kind = "IOWriteError"
	KindPersistence Kind = "PersistenceError"
)

// Classified wraps an underlying error with a Kind, a Class, and the
// component/operation that produced it.
type Classified struct {
	Kind      Kind
	Class     Class
	Component string
	Operation string
	Err       error
}

func (e *Classified) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s[%s/%s]", e.Kind, e.Component, e.Operation)
	}
	return fmt.Sprintf("%s[%s/%s]: %v", e.Kind, e.Component, e.Operation, e.Err)
}

func (e *Classified) Unwrap() error { return e.Err }

// Wrap builds a Classified error.
func Wrap(kind Kind, class Class, component, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Kind: kind, Class: class, Component: component, Operation: operation, Err: err}
}

// Config, Bind, Framing, Timeout, Transform, IOWrite and Persistence are
// convenience constructors matching the error handling design's kinds.
func Config(component, operation string, err error) error {
	return Wrap(KindConfig, Invalid, component, operation, err)
}

func Bind(component, operation string, err error) error {
	return Wrap(KindBind, Fatal, component, operation, err)
}

func Framing(component, operation string, err error) error {
	return Wrap(KindFraming, Transient, component, operation, err)
}

func Timeout(component, operation string, err error) error {
	return Wrap(KindTimeout, Transient, component, operation, err)
}

func Transform(component, operation string, err error) error {
	return Wrap(KindTransform, Invalid, component, operation, err)
}

func IOWrite(component, operation string, err error) error {
	return Wrap(KindIOWrite, Transient, component, operation, err)
}

func Persistence(component, operation string, err error) error {
	return Wrap(KindPersistence, Transient, component, operation, err)
}

// ClassOf returns the Class carried by err, defaulting to Transient for
// unclassified errors so that ordinary I/O failures are still retryable.
func ClassOf(err error) Class {
	var c *Classified
	if errors.As(err, &c) {
		return c.Class
	}
	return Transient
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return ClassOf(err) == Transient
}

// IsFatal reports whether err should stop the affected channel.
func IsFatal(err error) bool {
	return ClassOf(err) == Fatal
}

// KindOf returns the Kind carried by err, or "" if err is not Classified.
func KindOf(err error) Kind {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	return ""
}
