package reconnect

import (
	"testing"
	"time"
)

func TestDecide(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: 5 * time.Second}

	tests := []struct {
		name       string
		unexpected bool
		attempts   int
		wantRetry  bool
	}{
		{"first attempt after unexpected drop", true, 0, true},
		{"attempt below cap", true, 2, true},
		{"attempts exhausted", true, 3, false},
		{"past cap", true, 10, false},
		{"expected disconnect never retries", false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(tt.unexpected, tt.attempts)
			if d.Retry != tt.wantRetry {
				t.Errorf("Decide(%v, %d).Retry = %v, want %v", tt.unexpected, tt.attempts, d.Retry, tt.wantRetry)
			}
			if d.Retry && d.Delay != p.Delay {
				t.Errorf("Decide delay = %v, want %v", d.Delay, p.Delay)
			}
			if !d.Retry && d.Delay != 0 {
				t.Errorf("no-retry decision should carry zero delay, got %v", d.Delay)
			}
		})
	}
}

func TestZeroPolicyNeverRetries(t *testing.T) {
	var p Policy
	if d := p.Decide(true, 0); d.Retry {
		t.Error("zero-value policy should never retry")
	}
}
