package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a run cannot start with the given parameters
	ErrConfiguration = errors.New("invalid clustering configuration")

	// ErrAssignmentOverflow is returned when the groups cannot hold every item
	ErrAssignmentOverflow = errors.New("cluster capacity exceeded")
)

// ConfigError describes which parameter made a run impossible to start
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

func configErrorf(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// AssignmentOverflowError lists the items that could not be placed in any group
type AssignmentOverflowError struct {
	Unassigned []int
	Capacity   int
	Clusters   int
	Items      int
}

func (e *AssignmentOverflowError) Error() string {
	if len(e.Unassigned) == 0 {
		return fmt.Sprintf("%v: %d clusters of %d cannot hold %d items",
			ErrAssignmentOverflow, e.Clusters, e.Capacity, e.Items)
	}
	return fmt.Sprintf("%v: %d of %d items unassigned (%d clusters of %d)",
		ErrAssignmentOverflow, len(e.Unassigned), e.Items, e.Clusters, e.Capacity)
}

func (e *AssignmentOverflowError) Unwrap() error {
	return ErrAssignmentOverflow
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsAssignmentOverflow checks if an error is a capacity overflow
func IsAssignmentOverflow(err error) bool {
	return errors.Is(err, ErrAssignmentOverflow)
}
