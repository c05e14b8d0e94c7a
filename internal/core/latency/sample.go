package latency

import "time"

// Sample bounds one network round trip: Sent is taken immediately before
// the request is written, Received once the full body has been read.
type Sample struct {
	Label    string
	Sent     time.Time
	Received time.Time
	Millis   int64
}

// NewSample stamps the whole-millisecond duration at creation time.
func NewSample(label string, sent, received time.Time) Sample {
	return Sample{
		Label:    label,
		Sent:     sent,
		Received: received,
		Millis:   int64(received.Sub(sent).Round(time.Millisecond) / time.Millisecond),
	}
}

// Duration is the exact round trip, for metrics that want sub-ms precision.
func (s Sample) Duration() time.Duration {
	return s.Received.Sub(s.Sent)
}

// IsZero reports whether the sample was never taken (the call failed
// before anything was sent).
func (s Sample) IsZero() bool {
	return s.Sent.IsZero()
}
