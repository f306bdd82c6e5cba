// Package normalize turns free-text control tool output into stable reply bodies.
//
// Each verb family has its own extractor because the control tool prints
// pass/fail records for lifecycle verbs, one line per instance for a
// fleet status query, and a single comma separated record for an instance
// status query. Normalized lines are joined with CRLF and the final line
// carries no terminator.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/danmuck/gymon/internal/command"
)

// LineEnding separates normalized lines.
const LineEnding = "\r\n"

var (
	ErrNoMatch     = errors.New("normalize: no recognizable output")
	ErrUnsupported = errors.New("normalize: verb has no output extractor")
)

var (
	lifecyclePattern = regexp.MustCompile(`(?i)^(.*?):.*?(FAILED|OK).*?$`)
	statusPattern    = regexp.MustCompile(`(?i)^(.*?)\sis\s(.*?)$`)
	recordPattern    = regexp.MustCompile(`(?i)^(\w+,\s+-?\d+,(?:\s*\w+\s*)+)$`)
	trailingNumber   = regexp.MustCompile(`(\d+)\D*$`)
)

// Labeler supplies the display label of an instance.
type Labeler interface {
	Label(instance int) (string, bool)
}

type extractor func(cmd command.Command, raw string, labels Labeler) (string, error)

var extractors = map[command.Verb]extractor{
	command.VerbStart:   lifecycle,
	command.VerbStop:    lifecycle,
	command.VerbRestart: lifecycle,
	command.VerbStatus:  status,
}

// Normalize extracts the reply body for cmd from raw tool output.
func Normalize(cmd command.Command, raw string, labels Labeler) (string, error) {
	fn, ok := extractors[cmd.Verb()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, cmd.Verb())
	}
	return fn(cmd, raw, labels)
}

// Fallback is the raw output with trailing line terminators removed.
func Fallback(raw string) string {
	return strings.TrimRight(raw, "\r\n")
}

func lifecycle(_ command.Command, raw string, _ Labeler) (string, error) {
	out := make([]string, 0)
	for _, line := range splitLines(raw) {
		m := lifecyclePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", m[1], m[2]))
	}
	if len(out) == 0 {
		return "", ErrNoMatch
	}
	return strings.Join(out, LineEnding), nil
}

func status(cmd command.Command, raw string, labels Labeler) (string, error) {
	if n, ok := cmd.Instance(); ok {
		return instanceStatus(n, raw, labels)
	}
	return fleetStatus(raw, labels)
}

func fleetStatus(raw string, labels Labeler) (string, error) {
	out := make([]string, 0)
	for _, line := range splitLines(raw) {
		m := statusPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		subject := m[1]
		if n, ok := subjectInstance(subject); ok {
			subject = withLabel(labels, n, subject)
		}
		out = append(out, fmt.Sprintf("Status %s: %s", subject, m[2]))
	}
	if len(out) == 0 {
		return "", ErrNoMatch
	}
	return strings.Join(out, LineEnding), nil
}

func instanceStatus(instance int, raw string, labels Labeler) (string, error) {
	line := raw
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	m := recordPattern.FindStringSubmatch(line)
	if m == nil {
		return "", ErrNoMatch
	}
	subject := withLabel(labels, instance, fmt.Sprintf("Gymea instance %d", instance))
	return fmt.Sprintf("Status %s: %s", subject, m[1]), nil
}

func withLabel(labels Labeler, instance int, subject string) string {
	if labels == nil {
		return subject
	}
	label, ok := labels.Label(instance)
	if !ok || label == "" {
		return subject
	}
	return label + " " + subject
}

// subjectInstance finds the instance a status subject refers to.
func subjectInstance(subject string) (int, bool) {
	m := trailingNumber.FindStringSubmatch(subject)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || !command.ValidInstance(n) {
		return 0, false
	}
	return n, true
}

func splitLines(raw string) []string {
	parts := strings.Split(raw, "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSuffix(p, "\r")
		if p == "" {
			continue
		}
		lines = append(lines, p)
	}
	return lines
}
