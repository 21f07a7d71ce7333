// ABOUTME: Tests for the clock offset/drift compensator
// ABOUTME: Covers median offsets, drift fitting, and reference handover
package clock

import (
	"math"
	"testing"
	"time"
)

// fakeClock drives the compensator with deterministic wall time
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fakeClock) nowMs() float64 {
	return float64(f.now.UnixNano()) / 1e6
}

func newTestCompensator(f *fakeClock) *Compensator {
	c := NewCompensator()
	c.nowFn = func() time.Time { return f.now }
	c.calibratedAt = f.now
	return c
}

func TestConstantOffsetNormalization(t *testing.T) {
	f := newFakeClock()
	c := newTestCompensator(f)

	// Source 1 reports local time (reference), source 2 runs +50ms
	for i := 0; i < 20; i++ {
		c.MeasureOffset(1, f.nowMs())
		c.MeasureOffset(2, f.nowMs()+50)
		f.advance(100 * time.Millisecond)
	}

	ref, ok := c.Reference()
	if !ok || ref != 1 {
		t.Fatalf("expected source 1 as reference, got %d (ok=%v)", ref, ok)
	}

	// The same instant reported by both clocks must normalize together
	raw := f.nowMs()
	normA := c.NormalizeTimestamp(1, raw)
	normB := c.NormalizeTimestamp(2, raw+50)

	if diff := math.Abs(normA - normB); diff > 2.0 {
		t.Errorf("normalized timestamps diverge by %fms", diff)
	}
}

func TestMedianRejectsOutliers(t *testing.T) {
	f := newFakeClock()
	c := newTestCompensator(f)

	for i := 0; i < 9; i++ {
		c.MeasureOffset(1, f.nowMs()+50)
		f.advance(100 * time.Millisecond)
	}
	// Single wild measurement must not move the median
	c.MeasureOffset(1, f.nowMs()+500)

	if off := c.OffsetMs(1); math.Abs(off-50) > 1.0 {
		t.Errorf("expected offset near 50ms despite outlier, got %f", off)
	}
}

func TestDriftRateFit(t *testing.T) {
	f := newFakeClock()
	c := newTestCompensator(f)

	// Offset grows 1ms per second: 0,1,2,...,9 at 1 Hz
	for i := 0; i < 10; i++ {
		c.MeasureOffset(1, f.nowMs()+float64(i))
		f.advance(1 * time.Second)
	}

	c.Recalibrate()

	if rate := c.DriftRate(1); math.Abs(rate-1.0) > 0.05 {
		t.Errorf("expected drift rate near 1.0 ms/s, got %f", rate)
	}
}

func TestInsufficientDataYieldsZeroDrift(t *testing.T) {
	f := newFakeClock()
	c := newTestCompensator(f)

	c.MeasureOffset(1, f.nowMs()+10)
	f.advance(time.Second)
	c.MeasureOffset(1, f.nowMs()+20)

	c.Recalibrate()

	if rate := c.DriftRate(1); rate != 0 {
		t.Errorf("expected zero drift with too few samples, got %f", rate)
	}
}

func TestDriftProjectionAfterRecalibration(t *testing.T) {
	f := newFakeClock()
	c := newTestCompensator(f)

	c.MeasureOffset(1, f.nowMs()) // reference, zero offset
	for i := 0; i < 10; i++ {
		c.MeasureOffset(2, f.nowMs()+float64(i))
		f.advance(1 * time.Second)
	}

	c.Recalibrate()

	// 5 seconds after calibration a 1 ms/s drift projects 5ms further
	f.advance(5 * time.Second)
	raw := 1000.0
	norm := c.NormalizeTimestamp(2, raw)
	base := raw - c.OffsetMs(2) + c.OffsetMs(1)
	projected := base - norm
	if math.Abs(projected-5.0) > 0.5 {
		t.Errorf("expected ~5ms drift projection, got %f", projected)
	}
}

func TestRemoveSourceReselectsReference(t *testing.T) {
	f := newFakeClock()
	c := newTestCompensator(f)

	for i := 0; i < 10; i++ {
		c.MeasureOffset(1, f.nowMs())    // reference
		c.MeasureOffset(2, f.nowMs()+80) // larger offset
		c.MeasureOffset(3, f.nowMs()+20) // smallest remaining offset
		f.advance(100 * time.Millisecond)
	}

	c.RemoveSource(1)

	ref, ok := c.Reference()
	if !ok {
		t.Fatal("expected a reference after removal")
	}
	if ref != 3 {
		t.Errorf("expected source 3 (smallest offset) as reference, got %d", ref)
	}

	// Removed source behaves as brand new
	if off := c.OffsetMs(1); off != 0 {
		t.Errorf("expected zero offset for removed source, got %f", off)
	}
}

func TestUnknownSourcePassesThrough(t *testing.T) {
	f := newFakeClock()
	c := newTestCompensator(f)

	if norm := c.NormalizeTimestamp(9, 1234.0); norm != 1234.0 {
		t.Errorf("expected pass-through for unknown source, got %f", norm)
	}
}
