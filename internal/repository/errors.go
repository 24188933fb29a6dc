package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint would be violated.
	ErrConflict = errors.New("repository: conflict")
	// ErrInvalidArgument indicates input rejected by the store.
	ErrInvalidArgument = errors.New("repository: invalid argument")
)

// MissingError names the entity behind an ErrNotFound.
type MissingError struct {
	Kind string
	Name string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// Is matches ErrNotFound.
func (e *MissingError) Is(target error) bool { return target == ErrNotFound }

// Missing converts ErrNotFound into a MissingError for kind and name; other
// errors pass through unchanged.
func Missing(kind, name string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &MissingError{Kind: kind, Name: name}
	}
	return err
}
