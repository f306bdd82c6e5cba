// Package tools runs the Gymea control command and captures its output.
//
// Ownership boundary:
// - local shell invocation
//
// - remote invocation over SSH
//
// Exit status is not a failure: the control tool reports per-instance
// failures in its text and exits non-zero, and that text is still the reply.
// Only a command that cannot be started or read from is an invocation error.
package tools
