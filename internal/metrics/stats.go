package metrics

import (
	"fmt"
	"time"
)

// Mean is a running mean: sum and count since the last Reset.
type Mean struct {
	sum   float64
	count int
}

// Record adds one value.
func (m *Mean) Record(v float64) {
	m.sum += v
	m.count++
}

// Result returns sum/count, or 0 when nothing was recorded.
func (m *Mean) Result() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Count returns the number of recorded values.
func (m *Mean) Count() int { return m.count }

// Reset clears the accumulator.
func (m *Mean) Reset() {
	m.sum = 0
	m.count = 0
}

// Values are the scalars produced by one training step.
type Values struct {
	AELoss   float64
	DCZLoss  float64
	DCZAcc   float64
	GenZLoss float64
	DCXLoss  float64
	DCXAcc   float64
	GenXLoss float64
}

// Window accumulates step values across one epoch.
type Window struct {
	ae, dcZ, dcZAcc, genZ, dcX, dcXAcc, genX Mean
	start                                   time.Time
}

// Start resets every accumulator and the epoch clock.
func (w *Window) Start(now time.Time) {
	for _, m := range w.means() {
		m.Reset()
	}
	w.start = now
}

// Record adds one step's values.
func (w *Window) Record(v Values) {
	w.ae.Record(v.AELoss)
	w.dcZ.Record(v.DCZLoss)
	w.dcZAcc.Record(v.DCZAcc)
	w.genZ.Record(v.GenZLoss)
	w.dcX.Record(v.DCXLoss)
	w.dcXAcc.Record(v.DCXAcc)
	w.genX.Record(v.GenXLoss)
}

// Snapshot returns the epoch summary. remaining is the number of epochs
// still to run including this one, so ETA = duration * remaining.
func (w *Window) Snapshot(epoch, remaining int, now time.Time) Snapshot {
	d := now.Sub(w.start)
	return Snapshot{
		Epoch:    epoch,
		Duration: d,
		ETA:      time.Duration(remaining) * d,
		Steps:    w.ae.Count(),
		Means: Values{
			AELoss:   w.ae.Result(),
			DCZLoss:  w.dcZ.Result(),
			DCZAcc:   w.dcZAcc.Result(),
			GenZLoss: w.genZ.Result(),
			DCXLoss:  w.dcX.Result(),
			DCXAcc:   w.dcXAcc.Result(),
			GenXLoss: w.genX.Result(),
		},
	}
}

func (w *Window) means() []*Mean {
	return []*Mean{&w.ae, &w.dcZ, &w.dcZAcc, &w.genZ, &w.dcX, &w.dcXAcc, &w.genX}
}

// Snapshot represents one loggable epoch summary.
type Snapshot struct {
	Epoch    int
	Duration time.Duration
	ETA      time.Duration
	Steps    int
	Means    Values
}

// String renders the progress line.
func (s Snapshot) String() string {
	return fmt.Sprintf("%4d: TIME: %.2f ETA: %.2f AE_LOSS: %.4f DC_Z_LOSS: %.4f DC_Z_ACC: %.4f GEN_Z_LOSS: %.4f DC_X_LOSS: %.4f DC_X_ACC: %.4f GEN_X_LOSS: %.4f",
		s.Epoch,
		s.Duration.Seconds(),
		s.ETA.Seconds(),
		s.Means.AELoss,
		s.Means.DCZLoss,
		s.Means.DCZAcc,
		s.Means.GenZLoss,
		s.Means.DCXLoss,
		s.Means.DCXAcc,
		s.Means.GenXLoss,
	)
}
