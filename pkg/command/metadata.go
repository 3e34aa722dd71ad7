// Package command binds command metadata, permission gating and dispatch.
//
// A Handler owns an immutable Metadata and implements Execute. The Dispatcher
// resolves handlers by name from an explicit Registry, checks the handler's
// required permission exactly once through a Gate, and only then calls
// Execute. Handlers never check permissions themselves.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidMetadata is returned when a command descriptor is malformed.
// It is a startup error; it never occurs per invocation.
var ErrInvalidMetadata = errors.New("command: invalid metadata")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Metadata describes a command. The zero value is not valid; use NewMetadata.
type Metadata struct {
	name        string
	description string
	usage       string
	permission  string
}

// NewMetadata validates and builds a command descriptor.
func NewMetadata(name, description, usage, permission string) (Metadata, error) {
	switch {
	case !namePattern.MatchString(name):
		return Metadata{}, fmt.Errorf("%w: name %q must be alphanumeric", ErrInvalidMetadata, name)
	case strings.TrimSpace(description) == "":
		return Metadata{}, fmt.Errorf("%w: %s: empty description", ErrInvalidMetadata, name)
	case strings.TrimSpace(usage) == "":
		return Metadata{}, fmt.Errorf("%w: %s: empty usage", ErrInvalidMetadata, name)
	case strings.TrimSpace(permission) == "":
		return Metadata{}, fmt.Errorf("%w: %s: empty permission", ErrInvalidMetadata, name)
	}
	return Metadata{
		name:        name,
		description: description,
		usage:       usage,
		permission:  permission,
	}, nil
}

// MustMetadata is like NewMetadata but panics on error.
func MustMetadata(name, description, usage, permission string) Metadata {
	md, err := NewMetadata(name, description, usage, permission)
	if err != nil {
		panic(err)
	}
	return md
}

func (m Metadata) Name() string        { return m.name }
func (m Metadata) Description() string { return m.description }
func (m Metadata) Usage() string       { return m.usage }
func (m Metadata) Permission() string  { return m.permission }

// Valid reports whether m was built by NewMetadata.
func (m Metadata) Valid() bool {
	return m.name != "" && m.permission != ""
}
