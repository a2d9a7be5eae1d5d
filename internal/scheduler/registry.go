package scheduler

import (
	"fmt"
	"sort"
)

// drivers is the static registration table mapping scheduler type identifiers
// to driver constructors. Entries are fixed at build time; an identifier not
// present here is a configuration error at startup, never a per-call failure.
var drivers = map[string]func(run CommandRunner) Driver{
	TypeSLURM: func(run CommandRunner) Driver { return NewSLURM(run) },
}

// New constructs the driver for the given scheduler type identifier, shelling
// out with ExecRunner. Callers treat an error here as fatal: it means the
// deployment is configured for a scheduler this build does not support.
func New(typeID string) (Driver, error) {
	return NewWithRunner(typeID, ExecRunner)
}

// NewWithRunner is New with an explicit CommandRunner, for tests.
func NewWithRunner(typeID string, run CommandRunner) (Driver, error) {
	ctor, ok := drivers[typeID]
	if !ok {
		return nil, fmt.Errorf("unknown scheduler type %q (supported: %v)", typeID, Types())
	}
	return ctor(run), nil
}

// Types returns the supported scheduler type identifiers, sorted for stable
// error messages.
func Types() []string {
	types := make([]string, 0, len(drivers))
	for t := range drivers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
