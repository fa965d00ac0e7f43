package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Slow-operation thresholds for Timer
const (
	SlowThreshold     = 10 * time.Second
	VerySlowThreshold = 30 * time.Second
)

// Timer measures one operation and logs its duration on Stop
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

// NewTimer starts a timer for the named operation
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{start: time.Now(), name: name, log: log}
}

// Stop logs the elapsed time at a level that rises with duration and returns it
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)

	event := t.log.Debug()
	msg := "Operation completed"
	switch {
	case d > VerySlowThreshold:
		event, msg = t.log.Warn(), "Slow operation detected"
	case d > SlowThreshold:
		event, msg = t.log.Info(), "Operation took longer than expected"
	}
	event.Str("operation", t.name).Dur("duration", d).Msg(msg)

	return d
}
