package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an object is absent from the catalog.
	ErrNotFound = errors.New("object not found")

	// ErrDefinitionUnavailable is returned when a view's definition text
	// cannot be retrieved (permissions, transient failures, empty result).
	ErrDefinitionUnavailable = errors.New("definition unavailable")

	// ErrCatalogUnreachable is returned when the catalog cannot be queried at all.
	ErrCatalogUnreachable = errors.New("catalog unreachable")

	// ErrClosed is returned when a catalog is used after Close.
	ErrClosed = errors.New("catalog closed")
)

// NotFoundError reports a missing object by name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s", e.Name)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err signals a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Unreachable wraps err as ErrCatalogUnreachable unless it already is one.
func Unreachable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCatalogUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrCatalogUnreachable, op, err)
}

// UnknownDriverError is returned when an unregistered catalog driver is requested.
type UnknownDriverError struct {
	Driver    string
	Available []string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("unknown catalog driver %q\nAvailable drivers: %v\nHint: Check connections.<name>.driver in viewgraph.yaml", e.Driver, e.Available)
}
