package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultServiceCommand is the control tool invoked for every non-offset verb.
const DefaultServiceCommand = "service gymea"

const (
	MinInstance = 0
	MaxInstance = 3
)

var ErrInvalidRequest = errors.New("command: invalid request")

// Verb is one operation keyword of the request grammar.
type Verb string

const (
	VerbStart   Verb = "start"
	VerbStop    Verb = "stop"
	VerbRestart Verb = "restart"
	VerbStatus  Verb = "status"
	VerbOffset  Verb = "offset"
)

var verbs = []Verb{VerbStart, VerbStop, VerbRestart, VerbStatus, VerbOffset}

// Verbs returns the accepted vocabulary in protocol order.
func Verbs() []Verb {
	out := make([]Verb, len(verbs))
	copy(out, verbs)
	return out
}

// IsLifecycle reports whether v runs the control tool and yields pass/fail records.
func (v Verb) IsLifecycle() bool {
	return v == VerbStart || v == VerbStop || v == VerbRestart
}

func lookupVerb(token string) (Verb, bool) {
	for _, v := range verbs {
		if strings.EqualFold(token, string(v)) {
			return v, true
		}
	}
	return "", false
}

var requestPattern = regexp.MustCompile(`(?i)^\s{0,5}gymea\s{0,5}(\w+)\s{0,5}([0-3])?\s{0,5}$`)

// Command is one parsed protocol request.
type Command struct {
	verb     Verb
	instance int
	scoped   bool
}

// New builds a command for verb targeting every instance.
func New(verb Verb) Command {
	return Command{verb: verb}
}

// NewForInstance builds a command scoped to one instance.
func NewForInstance(verb Verb, instance int) (Command, error) {
	if !ValidInstance(instance) {
		return Command{}, fmt.Errorf("%w: instance %d out of range", ErrInvalidRequest, instance)
	}
	return Command{verb: verb, instance: instance, scoped: true}, nil
}

// ValidInstance reports whether n names a managed instance.
func ValidInstance(n int) bool {
	return n >= MinInstance && n <= MaxInstance
}

func (c Command) Verb() Verb {
	return c.verb
}

// Instance returns the targeted instance and whether one was given.
func (c Command) Instance() (int, bool) {
	return c.instance, c.scoped
}

func (c Command) String() string {
	if c.scoped {
		return fmt.Sprintf("%s %d", c.verb, c.instance)
	}
	return string(c.verb)
}

// Parse matches the request shape first and the verb vocabulary second.
// Both failures wrap ErrInvalidRequest.
func Parse(request string) (Command, error) {
	m := requestPattern.FindStringSubmatch(request)
	if m == nil {
		return Command{}, fmt.Errorf("%w: malformed request", ErrInvalidRequest)
	}
	verb, ok := lookupVerb(m[1])
	if !ok {
		return Command{}, fmt.Errorf("%w: unknown verb %q", ErrInvalidRequest, m[1])
	}
	if m[2] == "" {
		return New(verb), nil
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return Command{}, fmt.Errorf("%w: instance %q", ErrInvalidRequest, m[2])
	}
	return NewForInstance(verb, n)
}

// Invocation builds the shell line for cmd, folding stderr into stdout.
func Invocation(serviceCommand string, cmd Command) string {
	base := strings.TrimSpace(serviceCommand)
	if base == "" {
		base = DefaultServiceCommand
	}
	if n, ok := cmd.Instance(); ok {
		return fmt.Sprintf("%s %s %d 2>&1", base, cmd.verb, n)
	}
	return fmt.Sprintf("%s %s 2>&1", base, cmd.verb)
}
