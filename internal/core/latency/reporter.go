package latency

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const clockFormat = "15:04:05.000"

// Reporter accumulates samples in the order they were produced and renders
// them as a table. It never changes a sample; clock formatting happens only
// at render time.
type Reporter struct {
	mu      sync.Mutex
	samples []Sample
}

func NewReporter() *Reporter {
	return &Reporter{}
}

// Add appends s. Zero samples (nothing was sent) are ignored.
func (r *Reporter) Add(s Sample) {
	if s.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

// Samples returns a copy in insertion order.
func (r *Reporter) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

func (r *Reporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Render writes:
//
//	#  | Sent         | Received     | Latency(ms) | Stage
//	---------------------------------------------------------
//	1  | 12:00:00.001 | 12:00:00.009 |           8 | buy
func (r *Reporter) Render(w io.Writer) error {
	samples := r.Samples()

	header := fmt.Sprintf("%-3s | %-12s | %-12s | %-11s | %s", "#", "Sent", "Received", "Latency(ms)", "Stage")
	if _, err := fmt.Fprintf(w, "%s\n%s\n", header, strings.Repeat("-", len(header)+8)); err != nil {
		return err
	}
	for i, s := range samples {
		_, err := fmt.Fprintf(w, "%-3d | %-12s | %-12s | %11d | %s\n",
			i+1, s.Sent.Format(clockFormat), s.Received.Format(clockFormat), s.Millis, s.Label)
		if err != nil {
			return err
		}
	}
	return nil
}
