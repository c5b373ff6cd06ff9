package metrics

import (
	"testing"
	"time"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()
	c.RecordRequest(OpChat, 30*time.Millisecond, false)
	c.RecordRequest(OpChat, 10*time.Millisecond, true)
	c.RecordRequest(OpAuth, 5*time.Millisecond, false)

	snap := c.Snapshot()
	if len(snap.Operations) != 2 {
		t.Fatalf("got %d operations, want 2", len(snap.Operations))
	}
	if snap.Operations[0].Op != OpAuth || snap.Operations[1].Op != OpChat {
		t.Errorf("operations not sorted: %+v", snap.Operations)
	}

	chat := snap.Operations[1]
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"count", float64(chat.Count), 2},
		{"failures", float64(chat.Failures), 1},
		{"total", float64(chat.TotalTimeMs), 40},
		{"avg", chat.AvgTimeMs, 20},
		{"min", float64(chat.MinTimeMs), 10},
		{"max", float64(chat.MaxTimeMs), 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestCollectorEmpty(t *testing.T) {
	snap := NewCollector().Snapshot()
	if len(snap.Operations) != 0 {
		t.Errorf("expected no operations, got %d", len(snap.Operations))
	}
}
