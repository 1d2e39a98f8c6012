package pollio

import "errors"

// Readiness is the {readable, peer-hung-up} pair the kernel reports for a
// descriptor. Entries never ask for anything but readable|hangup, but the
// reaction methods receive whichever bits actually fired.
type Readiness uint32

const (
	Readable Readiness = 1 << iota
	HungUp
	PollError
)

// CallbackMessage is returned by an Entry's reaction to a readiness event
// and drives the registry/orchestrator's response.
type CallbackMessage int

const (
	// Nop means the event was handled internally (e.g. more stderr bytes
	// buffered) and the entry stays registered.
	Nop CallbackMessage = iota
	// Unregister means the caller should remove the entry — its Tag/fd data
	// is final (a hung-up LogReader).
	Unregister
	// HandleExplicitly means the caller owns the next step — an ExitWatch
	// never reaps its own process; the orchestrator does, so it can apply
	// the failure-cascade policy.
	HandleExplicitly
)

// Entry is the unit registered in a Registry. ExitWatch and LogReader are
// its only implementations; callers that need the concrete kind use a
// type assertion.
type Entry interface {
	// FD returns the descriptor this entry is registered under. Stable for
	// the lifetime of the entry.
	FD() int
	// React turns a readiness event into a CallbackMessage. Must not block.
	React(r Readiness) (CallbackMessage, error)
}

var (
	// ErrFDAlreadyRegistered is returned by Register for a duplicate fd.
	ErrFDAlreadyRegistered = errors.New("pollio: fd already registered")
	// ErrNotRegistered is returned by Unregister for an unknown fd
	// (Dispatch yields Nop for an unknown fd instead).
	ErrNotRegistered = errors.New("pollio: fd not registered")
)
