package dicore

import (
	"github.com/junioryono/dicore/internal/pipeline"
)

// ResolutionContext is the record of one resolution, as policies and custom
// steps see it.
type ResolutionContext = pipeline.Context

// Policy authorizes resolutions before anything is constructed.
type Policy = pipeline.Policy

// PolicyFunc adapts a function to Policy.
type PolicyFunc = pipeline.PolicyFunc

// Decision is a policy's answer for one resolution.
type Decision = pipeline.Decision

// Allow permits a resolution.
func Allow() Decision {
	return pipeline.Allow()
}

// Deny refuses a resolution for reason.
func Deny(reason string) Decision {
	return pipeline.Deny(reason)
}

// NewDenyPatterns returns a policy refusing services whose id matches one of
// the patterns. A "*" matches any run of characters.
func NewDenyPatterns(patterns ...string) Policy {
	return pipeline.NewDenyPatterns(patterns...)
}

// DiagnosticsEvent describes one executed step of one resolution.
type DiagnosticsEvent = pipeline.Event

// DiagnosticsSink receives dev-mode step events. Its errors and panics are
// logged and never fail a resolution.
type DiagnosticsSink = pipeline.Sink

// DiagnosticsSinkFunc adapts a function to DiagnosticsSink.
type DiagnosticsSinkFunc = pipeline.SinkFunc
