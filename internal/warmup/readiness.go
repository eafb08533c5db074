package warmup

import (
	"sync/atomic"
	"time"
)

// Readiness reasons.
const (
	ReasonLoading = "reference data loading"
	ReasonTimeout = "grace period elapsed (reference data may still be loading)"
	ReasonFailed  = "reference warmup failed; scans will reload it"
)

// outcome is stored once, when the background warmup returns.
type outcome struct {
	at  time.Time
	err error
}

// ReadinessState gates traffic until the reference warmup returns or the
// grace period runs out. A failed warmup still opens the gate.
type ReadinessState struct {
	done    atomic.Pointer[outcome]
	started time.Time
	grace   time.Duration
	clock   func() time.Time
}

// ReadinessStatus is the JSON shape served by /readyz.
type ReadinessStatus struct {
	Ready          bool   `json:"ready"`
	Reason         string `json:"reason,omitempty"`
	WarmupError    string `json:"warmup_error,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// NewReadinessState starts the grace period now.
func NewReadinessState(grace time.Duration) *ReadinessState {
	return newReadinessState(grace, time.Now)
}

func newReadinessState(grace time.Duration, clock func() time.Time) *ReadinessState {
	return &ReadinessState{started: clock(), grace: grace, clock: clock}
}

// Finish records the warmup result. Only the first call counts.
func (s *ReadinessState) Finish(err error) {
	s.done.CompareAndSwap(nil, &outcome{at: s.clock(), err: err})
}

// MarkReady is Finish(nil).
func (s *ReadinessState) MarkReady() { s.Finish(nil) }

// IsReady reports whether traffic should be accepted.
func (s *ReadinessState) IsReady() bool {
	return s.done.Load() != nil || s.elapsed() >= s.grace
}

// WarmupCompleted ignores the grace period.
func (s *ReadinessState) WarmupCompleted() bool {
	return s.done.Load() != nil
}

// Status snapshots the state for probes.
func (s *ReadinessState) Status() ReadinessStatus {
	st := ReadinessStatus{
		ElapsedSeconds: int(s.elapsed().Seconds()),
		TimeoutSeconds: int(s.grace.Seconds()),
	}
	o := s.done.Load()
	switch {
	case o != nil && o.err != nil:
		st.Ready = true
		st.Reason = ReasonFailed
		st.WarmupError = o.err.Error()
		st.ElapsedSeconds = int(o.at.Sub(s.started).Seconds())
	case o != nil:
		st.Ready = true
		st.ElapsedSeconds = int(o.at.Sub(s.started).Seconds())
	case s.elapsed() >= s.grace:
		st.Ready = true
		st.Reason = ReasonTimeout
	default:
		st.Reason = ReasonLoading
	}
	return st
}

func (s *ReadinessState) elapsed() time.Duration {
	return s.clock().Sub(s.started)
}
