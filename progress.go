package ferromic

import (
	"sync/atomic"
	"time"
)

// ProgressBar tracks completed pairs for one region. Increment is safe
// from any goroutine; drawing is done only by the coordinator.
type ProgressBar struct {
	Label   string
	Total   uint64
	Current uint64
	started time.Time
}

func NewProgressBar(label string, total int) *ProgressBar {
	return &ProgressBar{
		Label:   label,
		Total:   uint64(total),
		started: time.Now(),
	}
}

func (bar *ProgressBar) Increment() {
	atomic.AddUint64(&bar.Current, 1)
}

// ClearAndDisplay redraws the bar in place with a completion count and
// the pairs-per-second rate so far.
func (bar *ProgressBar) ClearAndDisplay() {
	if bar.Total == 0 {
		return
	}
	current := atomic.LoadUint64(&bar.Current)

	Vprint("\r")
	width := 60 - len(bar.Label)
	if width < 10 {
		width = 10
	}
	barWidth := uint64(width)
	ticks := (barWidth * current) / bar.Total
	Vprintf("%s [", bar.Label)
	for i := uint64(0); i < ticks; i++ {
		Vprint("=")
	}
	for i := uint64(0); i < (barWidth - ticks); i++ {
		Vprint(" ")
	}
	secs := time.Since(bar.started).Seconds()
	rate := float64(current)
	if secs > 0 {
		rate = float64(current) / secs
	}
	Vprintf("] %d / %d (%0.1f pairs/sec)", current, bar.Total, rate)
}

// Finish completes the bar and moves to a fresh line.
func (bar *ProgressBar) Finish() {
	bar.ClearAndDisplay()
	Vprint("\n")
}
