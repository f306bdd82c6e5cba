package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/gymon/internal/command"
	"github.com/danmuck/gymon/internal/gymeacfg"
	"github.com/danmuck/gymon/internal/normalize"
	"github.com/danmuck/gymon/internal/observability"
	"github.com/danmuck/gymon/internal/tools"
	"github.com/rs/zerolog/log"
)

// Handler turns one framed request into one reply body.
type Handler interface {
	Handle(ctx context.Context, request string) string
}

// Dispatcher parses requests and routes them to the control tool or the
// instance configuration.
type Dispatcher struct {
	Invoker        tools.Invoker
	Offsets        normalize.OffsetSource
	Labels         normalize.Labeler
	ServiceCommand string
	// InvokeTimeout bounds one control tool run. Zero means no bound.
	InvokeTimeout time.Duration
}

var _ Handler = (*Dispatcher)(nil)

// Handle never fails: every problem becomes an ERROR body.
func (d *Dispatcher) Handle(ctx context.Context, request string) string {
	text := stripLineBreaks(request)
	cmd, err := command.Parse(request)
	if err != nil {
		observability.RecordRequest("", observability.OutcomeInvalid)
		log.Warn().Str("request", text).Err(err).Msg("invalid request")
		return invalidRequest(text)
	}

	if cmd.Verb() == command.VerbOffset {
		return d.offsets(cmd)
	}
	return d.invoke(ctx, cmd, text)
}

func (d *Dispatcher) offsets(cmd command.Command) string {
	verb := string(cmd.Verb())
	if d.Offsets == nil {
		observability.RecordRequest(verb, observability.OutcomeFailed)
		return configFailure("")
	}
	body, err := normalize.Offsets(cmd, d.Offsets)
	if err != nil {
		observability.RecordRequest(verb, observability.OutcomeFailed)
		log.Error().Str("command", cmd.String()).Err(err).Msg("instance configuration lookup failed")
		return configFailure(gymeacfg.Source(err))
	}
	observability.RecordRequest(verb, observability.OutcomeOK)
	return body
}

func (d *Dispatcher) invoke(ctx context.Context, cmd command.Command, text string) string {
	verb := string(cmd.Verb())
	if d.Invoker == nil {
		observability.RecordRequest(verb, observability.OutcomeFailed)
		return unableToExecute(text)
	}

	line := command.Invocation(d.ServiceCommand, cmd)
	runCtx := ctx
	if d.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.InvokeTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := d.Invoker.Invoke(runCtx, line)
	observability.RecordInvocation(verb, time.Since(start), err == nil)
	if err != nil {
		observability.RecordRequest(verb, observability.OutcomeFailed)
		log.Error().Str("command", cmd.String()).Err(err).Msg("control command failed")
		return unableToExecute(text)
	}

	body, err := normalize.Normalize(cmd, raw, d.Labels)
	if err == nil && body != "" {
		observability.RecordRequest(verb, observability.OutcomeOK)
		log.Debug().Str("command", cmd.String()).Msg("control command normalized")
		return body
	}

	observability.RecordRequest(verb, observability.OutcomeFailed)
	if err != nil && !errors.Is(err, normalize.ErrNoMatch) {
		log.Error().Str("command", cmd.String()).Err(err).Msg("normalize output")
	}
	fallback := normalize.Fallback(raw)
	if fallback == "" {
		return unableToExecute(text)
	}
	log.Warn().Str("command", cmd.String()).Str("output", fallback).Msg("unrecognized control output")
	return "ERROR: " + fallback
}

func invalidRequest(text string) string {
	return fmt.Sprintf("ERROR: The request '%s' is invalid", text)
}

func unableToExecute(text string) string {
	return fmt.Sprintf("ERROR: Unable to execute '%s' command", text)
}

// The misspelling is part of the wire contract.
func configFailure(source string) string {
	return fmt.Sprintf("ERROR: Failed to reteieve Gymea configuration: '%s'", source)
}

func stripLineBreaks(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
