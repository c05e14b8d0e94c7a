package latency

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNewSampleRoundsToMillis(t *testing.T) {
	sent := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		elapsed time.Duration
		want    int64
	}{
		{7*time.Millisecond + 400*time.Microsecond, 7},
		{7*time.Millisecond + 600*time.Microsecond, 8},
		{0, 0},
		{1500 * time.Millisecond, 1500},
	}

	for _, tt := range tests {
		s := NewSample("buy", sent, sent.Add(tt.elapsed))
		if s.Millis != tt.want {
			t.Errorf("elapsed %v: expected %d ms, got %d", tt.elapsed, tt.want, s.Millis)
		}
		if s.Duration() != tt.elapsed {
			t.Errorf("elapsed %v: Duration() = %v", tt.elapsed, s.Duration())
		}
	}
}

func TestReporterPreservesOrderAndTimestamps(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 123_456_789, time.UTC)
	r := NewReporter()

	in := []Sample{
		NewSample("server_time", base, base.Add(3*time.Millisecond)),
		NewSample("buy", base.Add(10*time.Millisecond), base.Add(18*time.Millisecond)),
		NewSample("get_order", base.Add(time.Second), base.Add(time.Second+5*time.Millisecond)),
	}
	for _, s := range in {
		r.Add(s)
	}
	r.Add(Sample{Label: "never-sent"})

	got := r.Samples()
	if len(got) != len(in) {
		t.Fatalf("Expected %d samples, got %d", len(in), len(got))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: expected %+v, got %+v", i, in[i], got[i])
		}
	}

	// Mutating the copy must not reach the reporter.
	got[0].Label = "changed"
	if r.Samples()[0].Label != "server_time" {
		t.Error("Samples() should return a copy")
	}
}

func TestReporterRender(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 1_000_000, time.UTC)
	r := NewReporter()
	r.Add(NewSample("buy", base, base.Add(8*time.Millisecond)))
	r.Add(NewSample("sell", base.Add(2*time.Second), base.Add(2*time.Second+12*time.Millisecond)))

	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header, rule and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "Latency(ms)") {
		t.Errorf("header missing latency column: %q", lines[0])
	}
	if !strings.Contains(lines[2], "12:00:00.001") || !strings.Contains(lines[2], "12:00:00.009") {
		t.Errorf("row 1 should show clock times with millis: %q", lines[2])
	}
	if !strings.HasSuffix(lines[2], "| buy") || !strings.HasSuffix(lines[3], "| sell") {
		t.Errorf("rows out of order:\n%s", buf.String())
	}
	if !strings.Contains(lines[3], "          12 |") {
		t.Errorf("row 2 should show 12 ms: %q", lines[3])
	}
}
