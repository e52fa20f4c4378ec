package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotImplemented   = errors.New("schedule: asymmetric key mutation is not implemented")
	ErrUnknownScheduler = errors.New("schedule: unknown scheduler")
	ErrNegativeRound    = errors.New("schedule: round index must not be negative")
)

// Scheduler derives the key string for a round.
type Scheduler interface {
	Derive(base string, round int) (string, error)
	// Name identifies the schedule and its version.
	Name() string
}

// asymmetricAlgorithms is the closed set of algorithm names reserved for the
// unimplemented asymmetric path.
var asymmetricAlgorithms = map[string]struct{}{
	"secp521r1": {},
	"secp512k1": {},
}

// IsAsymmetric reports whether algorithm is a reserved asymmetric name.
func IsAsymmetric(algorithm string) bool {
	_, ok := asymmetricAlgorithms[strings.ToLower(algorithm)]
	return ok
}

// CheckAlgorithm fails with ErrNotImplemented for asymmetric algorithms. It is
// meant to run at configuration time.
func CheckAlgorithm(algorithm string) error {
	if IsAsymmetric(algorithm) {
		return fmt.Errorf("%w: %s", ErrNotImplemented, algorithm)
	}
	return nil
}

// Lookup resolves a scheduler by name. Both the versioned names and the short
// aliases "mutation", "hkdf" and "ratchet" are accepted; the empty name selects
// Mutation. algorithm is passed to schedules that care about it.
func Lookup(name, algorithm string) (Scheduler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mutation", MutationName:
		return Mutation{Algorithm: algorithm}, nil
	case "hkdf", HKDFName:
		return HKDF{}, nil
	case "ratchet", RatchetName:
		return Ratchet{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownScheduler, name, strings.Join(Names(), ", "))
	}
}

// Names lists the versioned names of the built-in schedules.
func Names() []string {
	names := []string{MutationName, HKDFName, RatchetName}
	sort.Strings(names)
	return names
}
