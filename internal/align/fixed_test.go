// ABOUTME: Tests for the fixed-offset aligner
// ABOUTME: Covers delay build-up, sign flips, caps, and source clearing
package align

import (
	"testing"
)

func rampSamples(n int, start int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = start + int16(i)
	}
	return s
}

func TestFixedZeroOffsetPassesThrough(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())
	a.UpdateOffset(1, 0)

	in := rampSamples(480, 1)
	out := a.ApplyAlignment(1, in)
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d changed: %d != %d", i, out[i], in[i])
		}
	}
}

func TestFixedUnknownSourcePassesThrough(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())

	in := rampSamples(100, 7)
	out := a.ApplyAlignment(9, in)
	if len(out) != 100 || out[0] != 7 {
		t.Error("expected unmodified pass-through for unknown source")
	}
}

func TestFixedPositiveOffsetBuildsDelay(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())

	// +100ms at 12kHz = 1200 samples of delay
	a.UpdateOffset(1, 100)

	// First two chunks (960 samples) are under the target delay:
	// silence only
	for call := 0; call < 2; call++ {
		out := a.ApplyAlignment(1, constSamples(480, 1000))
		for i, v := range out {
			if v != 0 {
				t.Fatalf("call %d sample %d: expected silence, got %d", call, i, v)
			}
		}
	}

	// Third chunk crosses 1200 buffered: the oldest 240 samples emerge
	// after 240 samples of leading silence
	out := a.ApplyAlignment(1, constSamples(480, 1000))
	for i := 0; i < 240; i++ {
		if out[i] != 0 {
			t.Fatalf("sample %d: expected leading silence, got %d", i, out[i])
		}
	}
	for i := 240; i < 480; i++ {
		if out[i] != 1000 {
			t.Fatalf("sample %d: expected delayed audio, got %d", i, out[i])
		}
	}

	m := a.Metrics()
	if m.PendingSamples[1] != 1200 {
		t.Errorf("expected pending depth at target 1200, got %d", m.PendingSamples[1])
	}
}

func TestFixedSignFlipDrainsWithoutDuplication(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())
	a.UpdateOffset(1, 100) // 1200 samples

	// Build the delay with a recognizable ramp
	fed := 0
	for call := 0; call < 3; call++ {
		a.ApplyAlignment(1, rampSamples(480, int16(fed)))
		fed += 480
	}
	// 1440 fed, 240 emitted, 1200 pending

	a.UpdateOffset(1, -50)

	newAudio := constSamples(480, 30000)
	out := a.ApplyAlignment(1, newAudio)

	if len(out) != 1200+480 {
		t.Fatalf("expected drained 1680 samples, got %d", len(out))
	}
	// Drained audio continues exactly where emission stopped (sample 240)
	if out[0] != 240 {
		t.Errorf("expected drain to start at sample 240, got %d", out[0])
	}
	if out[1199] != 240+1199 {
		t.Errorf("expected drain to end at sample 1439, got %d", out[1199])
	}
	if out[1200] != 30000 {
		t.Errorf("expected new audio after drain, got %d", out[1200])
	}

	if a.Metrics().PendingSamples[1] != 0 {
		t.Error("expected pending buffer empty after drain")
	}

	// Next call is a plain pass-through
	out = a.ApplyAlignment(1, newAudio)
	if len(out) != 480 || out[0] != 30000 {
		t.Error("expected immediate pass-through after drain")
	}
}

func TestFixedSoftCapTrimsGradually(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())
	a.UpdateOffset(1, 10) // 120 samples target

	// Force a backlog far beyond target+500ms (120+6000)
	a.mu.Lock()
	a.sources[1].pending = make([]int16, 7000)
	a.mu.Unlock()

	a.ApplyAlignment(1, constSamples(480, 1))

	m := a.Metrics()
	if m.SoftTrims == 0 {
		t.Error("expected a soft trim")
	}
	if m.PendingSamples[1] >= 7000 {
		t.Errorf("expected pending to shrink, got %d", m.PendingSamples[1])
	}
	if m.HardTruncations != 0 {
		t.Error("soft cap must not hard-truncate")
	}
}

func TestFixedHardCapTruncatesToTarget(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())
	a.UpdateOffset(1, 10) // 120 samples target

	// Beyond the absolute 2s maximum
	a.mu.Lock()
	a.sources[1].pending = make([]int16, 30000)
	a.mu.Unlock()

	out := a.ApplyAlignment(1, constSamples(480, 1))

	m := a.Metrics()
	if m.HardTruncations != 1 {
		t.Fatalf("expected 1 hard truncation, got %d", m.HardTruncations)
	}
	if m.PendingSamples[1] > 480+120 {
		t.Errorf("expected pending near target after truncation, got %d", m.PendingSamples[1])
	}
	if len(out) != 480 {
		t.Errorf("expected fixed-size output block, got %d", len(out))
	}
}

func TestFixedHardCapIsAbsolute(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())
	a.UpdateOffset(1, 10) // 120 samples target

	// Just past 2s (24000 samples at 12kHz) but within target+2s: the
	// cap bounds the pending buffer's absolute size, not its growth
	// beyond the target
	a.mu.Lock()
	a.sources[1].pending = make([]int16, 24200)
	a.mu.Unlock()

	a.ApplyAlignment(1, constSamples(480, 1))

	m := a.Metrics()
	if m.HardTruncations != 1 {
		t.Fatalf("expected 1 hard truncation, got %d", m.HardTruncations)
	}
	if m.PendingSamples[1] > 480+120 {
		t.Errorf("expected pending near target after truncation, got %d", m.PendingSamples[1])
	}
}

func TestFixedHardCapYieldsToLargerTarget(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())
	a.UpdateOffset(1, 3000) // 36000 samples, beyond the 2s cap

	// The pending buffer must be allowed to reach the target delay
	a.mu.Lock()
	a.sources[1].pending = make([]int16, 30000)
	a.mu.Unlock()

	a.ApplyAlignment(1, constSamples(480, 1))

	m := a.Metrics()
	if m.HardTruncations != 0 {
		t.Errorf("expected no truncation while building a %d-sample delay, got %d",
			36000, m.HardTruncations)
	}
	if m.PendingSamples[1] != 30480 {
		t.Errorf("expected pending to keep growing toward target, got %d", m.PendingSamples[1])
	}
}

func TestFixedClearOffsetReleasesState(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())
	a.UpdateOffset(1, 100)
	a.ApplyAlignment(1, constSamples(480, 5))

	a.ClearOffset(1)

	m := a.Metrics()
	if _, ok := m.SourceOffsetMs[1]; ok {
		t.Error("expected source state to be gone")
	}

	// Behaves like a brand-new source
	out := a.ApplyAlignment(1, constSamples(480, 5))
	if out[0] != 5 {
		t.Error("expected pass-through after clear")
	}
}

func TestFixedReferenceIsSmallestAbsoluteOffset(t *testing.T) {
	a := NewFixedOffsetAligner(DefaultFixedConfig())
	a.UpdateOffset(1, 30)
	a.UpdateOffset(2, -10)

	ref, ok := a.Reference()
	if !ok || ref != 2 {
		t.Errorf("expected source 2 as reference, got %d (ok=%v)", ref, ok)
	}

	a.ClearOffset(2)
	ref, ok = a.Reference()
	if !ok || ref != 1 {
		t.Errorf("expected source 1 after clearing 2, got %d (ok=%v)", ref, ok)
	}
}
