package match

import (
	"fmt"

	"github.com/delta/matchdriver/internal/participant"
)

// Kind is the closed error taxonomy from spec.md §7. The orchestrator's
// terminal-status mapping switches on Kind rather than matching strings.
type Kind int

const (
	// Unidentified covers any syscall/unexpected error not otherwise
	// classified — the catch-all, not a normal outcome.
	Unidentified Kind = iota
	CompilationFailure
	RuntimeFailure
	Timeout
	CommunicationFailure
)

func (k Kind) String() string {
	switch k {
	case CompilationFailure:
		return "Compilation Error!"
	case RuntimeFailure:
		return "Runtime Error!"
	case Timeout:
		return "Timeout Error!"
	case CommunicationFailure:
		return "Communication Error!"
	default:
		return "Unidentified Error!"
	}
}

// MatchError attributes a classified failure to the participant that
// caused it, carrying whatever diagnostic text is available (compiler
// stderr, captured runtime stderr, or a fixed message for Timeout).
type MatchError struct {
	Kind    Kind
	Tag     participant.Tag
	Message string
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("match: %s (%s): %s", e.Tag, e.Kind, e.Message)
}

func newTimeout(tag participant.Tag) *MatchError {
	return &MatchError{Kind: Timeout, Tag: tag, Message: "process was killed for exceeding its time limit"}
}

func newRuntimeFailure(tag participant.Tag, stderr string) *MatchError {
	return &MatchError{Kind: RuntimeFailure, Tag: tag, Message: stderr}
}

func newCompilationFailure(tag participant.Tag, stderr string) *MatchError {
	return &MatchError{Kind: CompilationFailure, Tag: tag, Message: stderr}
}

func newCommunicationFailure(tag participant.Tag, cause error) *MatchError {
	return &MatchError{Kind: CommunicationFailure, Tag: tag, Message: cause.Error()}
}

// formatLog renders a diagnostic as the "ERRORS, ..." prefixed block
// spec.md §7 specifies for the user-visible failure surface: a header
// line naming the error type, a fixed "ERRORS, ERROR LOG:" marker, then
// every line of the underlying message prefixed "ERRORS, ".
func formatLog(e *MatchError) string {
	var b []byte
	b = append(b, "ERRORS, ERROR TYPE: "...)
	b = append(b, e.Kind.String()...)
	b = append(b, '\n')
	b = append(b, "ERRORS, ERROR LOG:\n"...)
	for _, line := range splitLines(e.Message) {
		b = append(b, "ERRORS, "...)
		b = append(b, line...)
		b = append(b, '\n')
	}
	return string(b[:len(b)-1])
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
