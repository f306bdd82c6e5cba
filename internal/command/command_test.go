package command

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestParseValidRequests(t *testing.T) {
	cases := []struct {
		in       string
		verb     Verb
		instance int
		scoped   bool
	}{
		{in: "gymea start 2", verb: VerbStart, instance: 2, scoped: true},
		{in: "gymea status", verb: VerbStatus},
		{in: "  GYMEA Status  ", verb: VerbStatus},
		{in: "gymea RESTART 0", verb: VerbRestart, instance: 0, scoped: true},
		{in: "gymea stop  3 ", verb: VerbStop, instance: 3, scoped: true},
		{in: "gymea offset", verb: VerbOffset},
		{in: "gymea offset 1", verb: VerbOffset, instance: 1, scoped: true},
	}
	for _, tc := range cases {
		cmd, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if cmd.Verb() != tc.verb {
			t.Fatalf("parse %q: verb=%q want %q", tc.in, cmd.Verb(), tc.verb)
		}
		n, ok := cmd.Instance()
		if ok != tc.scoped || (ok && n != tc.instance) {
			t.Fatalf("parse %q: instance=%d,%v want %d,%v", tc.in, n, ok, tc.instance, tc.scoped)
		}
	}
}

func TestParseRejectsShapeAndVocabulary(t *testing.T) {
	for _, in := range []string{
		"gyme start",
		"gymea launch",
		"gymea start 4",
		"gymea start 12",
		"gymea",
		"      gymea status",
		"gymea status 1 2",
		"gymea st-art",
		"gymea stop3",
		"",
	} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("parse %q: expected ErrInvalidRequest, got %v", in, err)
		}
	}
}

func TestInvocation(t *testing.T) {
	cmd, err := NewForInstance(VerbStart, 2)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if got := Invocation("", cmd); got != "service gymea start 2 2>&1" {
		t.Fatalf("unexpected invocation: %q", got)
	}
	if got := Invocation("/usr/sbin/service gymea", New(VerbStatus)); got != "/usr/sbin/service gymea status 2>&1" {
		t.Fatalf("unexpected invocation: %q", got)
	}
}

func TestNewForInstanceRejectsOutOfRange(t *testing.T) {
	if _, err := NewForInstance(VerbStatus, 4); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := NewForInstance(VerbStatus, -1); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestParseRoundTripsGeneratedRequests(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		verb := rapid.SampledFrom(Verbs()).Draw(t, "verb")
		scoped := rapid.Bool().Draw(t, "scoped")
		n := rapid.IntRange(MinInstance, MaxInstance).Draw(t, "instance")
		lead := strings.Repeat(" ", rapid.IntRange(0, 5).Draw(t, "lead"))
		trail := strings.Repeat(" ", rapid.IntRange(0, 5).Draw(t, "trail"))
		upper := rapid.Bool().Draw(t, "upper")

		word := string(verb)
		if upper {
			word = strings.ToUpper(word)
		}
		req := fmt.Sprintf("%sgymea %s%s", lead, word, trail)
		if scoped {
			req = fmt.Sprintf("%sgymea %s %d%s", lead, word, n, trail)
		}

		cmd, err := Parse(req)
		if err != nil {
			t.Fatalf("parse %q: %v", req, err)
		}
		if cmd.Verb() != verb {
			t.Fatalf("parse %q: verb=%q", req, cmd.Verb())
		}
		got, ok := cmd.Instance()
		if ok != scoped || (scoped && got != n) {
			t.Fatalf("parse %q: instance=%d,%v", req, got, ok)
		}
	})
}
