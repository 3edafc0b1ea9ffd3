// Package domain implements the turn-orchestration engine: the conversation
// history normalizer, the per-turn model-invocation and tool-dispatch cycle,
// the multi-turn task loop, and the citation extraction/resolution pipeline.
//
// The package is pure business logic over the contracts in
// internal/agent/ports; transports, clients, and tool handlers live outside.
package domain

import (
	"time"

	"skald/internal/agent/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func orNop(logger ports.Logger) ports.Logger {
	if logger == nil {
		return nopLogger{}
	}
	return logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func orSystemClock(clock ports.Clock) ports.Clock {
	if clock == nil {
		return systemClock{}
	}
	return clock
}
