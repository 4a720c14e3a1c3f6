package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeakTracker_Monotone(t *testing.T) {
	tr := NewPeakTracker()
	now := time.Now()

	p := tr.Update("pos1", 0.50, now)
	assert.InDelta(t, 0.50, p.Peak, 1e-9)

	p = tr.Update("pos1", 0.70, now.Add(time.Second))
	assert.InDelta(t, 0.70, p.Peak, 1e-9)

	// lower price never lowers the peak
	p = tr.Update("pos1", 0.60, now.Add(2*time.Second))
	assert.InDelta(t, 0.70, p.Peak, 1e-9)
}

func TestPeakTracker_IsolatedPerPosition(t *testing.T) {
	tr := NewPeakTracker()
	now := time.Now()

	tr.Update("pos1", 0.90, now)
	p := tr.Update("pos2", 0.30, now)
	assert.InDelta(t, 0.30, p.Peak, 1e-9)

	got, ok := tr.Get("pos1")
	assert.True(t, ok)
	assert.InDelta(t, 0.90, got.Peak, 1e-9)
}

func TestPeakTracker_Drop(t *testing.T) {
	tr := NewPeakTracker()
	tr.Update("pos1", 0.50, time.Now())
	tr.Update("pos2", 0.50, time.Now())
	assert.Equal(t, 2, tr.Len())

	tr.Drop("pos1")
	_, ok := tr.Get("pos1")
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Len())

	// dropping twice is harmless
	tr.Drop("pos1")
}
