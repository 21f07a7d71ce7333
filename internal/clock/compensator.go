// ABOUTME: Clock offset and drift compensation across receiver sources
// ABOUTME: Normalizes reported timestamps onto one comparable timeline
package clock

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sdrsync/sdrsync-go/internal/audio"
)

const (
	historySize     = 100 // Bounded per-source offset history
	medianWindow    = 10  // Entries used for the current offset median
	minDriftSamples = 5   // Minimum history length for a drift fit
)

type offsetSample struct {
	at       time.Time
	offsetMs float64
}

// state tracks one source's clock relative to the local wall clock
type state struct {
	history   []offsetSample
	offsetMs  float64 // Median of the most recent offsets
	driftRate float64 // ms of offset change per second, 0 until fitted
	reference bool
}

// Compensator converts each source's raw reported timestamps into
// timestamps comparable across sources. Per-source history is written
// from that source's feed path and read from the alignment worker, so
// a single RWMutex serializes the map and histories.
type Compensator struct {
	mu           sync.RWMutex
	sources      map[audio.SourceID]*state
	reference    audio.SourceID
	hasRef       bool
	calibratedAt time.Time
	nowFn        func() time.Time
}

// NewCompensator creates a clock compensator
func NewCompensator() *Compensator {
	return &Compensator{
		sources:      make(map[audio.SourceID]*state),
		calibratedAt: time.Now(),
		nowFn:        time.Now,
	}
}

// MeasureOffset records one offset observation for a source: the
// difference between its reported timestamp and the local wall clock.
// The current offset becomes the median of the most recent window,
// which rejects single-sample jumps. The first source observed becomes
// the reference if none is set.
func (c *Compensator) MeasureOffset(id audio.SourceID, reportedTsMs float64) {
	now := c.nowFn()
	localMs := float64(now.UnixNano()) / 1e6
	offset := reportedTsMs - localMs

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sources[id]
	if !ok {
		s = &state{}
		c.sources[id] = s
	}

	s.history = append(s.history, offsetSample{at: now, offsetMs: offset})
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.offsetMs = medianRecent(s.history, medianWindow)

	if !c.hasRef {
		c.reference = id
		c.hasRef = true
		s.reference = true
		log.Printf("Clock reference set to source %d", id)
	}
}

// NormalizeTimestamp converts a source's raw timestamp onto the
// reference timeline: the offset relative to the reference source is
// removed, then drift accumulated since the last recalibration is
// projected out.
func (c *Compensator) NormalizeTimestamp(id audio.SourceID, rawTsMs float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sources[id]
	if !ok {
		return rawTsMs
	}

	var refOffset float64
	if c.hasRef {
		if ref, ok := c.sources[c.reference]; ok {
			refOffset = ref.offsetMs
		}
	}

	elapsed := c.nowFn().Sub(c.calibratedAt).Seconds()
	return rawTsMs - (s.offsetMs - refOffset) - s.driftRate*elapsed
}

// DriftRate returns the source's fitted drift rate in ms/s
func (c *Compensator) DriftRate(id audio.SourceID) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.sources[id]; ok {
		return s.driftRate
	}
	return 0
}

// OffsetMs returns the source's current median offset
func (c *Compensator) OffsetMs(id audio.SourceID) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.sources[id]; ok {
		return s.offsetMs
	}
	return 0
}

// Reference returns the current reference source, if any
func (c *Compensator) Reference() (audio.SourceID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reference, c.hasRef
}

// Recalibrate refits every source's drift rate and resets the
// calibration epoch. Only derived scalars are replaced; histories are
// untouched, so it is safe to run concurrently with normalization.
func (c *Compensator) Recalibrate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.sources {
		rate, ok := fitDrift(s.history)
		if !ok {
			// Too few points for a fit: degrade to zero drift
			s.driftRate = 0
			continue
		}
		s.driftRate = rate
	}
	c.calibratedAt = c.nowFn()
}

// RemoveSource drops all clock state for a disconnected source. When
// the reference goes away, the source with the smallest absolute
// offset takes over; other sources' histories are untouched.
func (c *Compensator) RemoveSource(id audio.SourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasRef := c.hasRef && c.reference == id
	delete(c.sources, id)

	if !wasRef {
		return
	}

	c.hasRef = false
	best := 0.0
	for sid, s := range c.sources {
		s.reference = false
		if !c.hasRef || absFloat(s.offsetMs) < best {
			c.reference = sid
			best = absFloat(s.offsetMs)
			c.hasRef = true
		}
	}
	if c.hasRef {
		c.sources[c.reference].reference = true
		log.Printf("Clock reference moved to source %d", c.reference)
	}
}

// medianRecent returns the median of the last window offsets
func medianRecent(history []offsetSample, window int) float64 {
	if len(history) == 0 {
		return 0
	}
	start := len(history) - window
	if start < 0 {
		start = 0
	}
	recent := make([]float64, 0, window)
	for _, s := range history[start:] {
		recent = append(recent, s.offsetMs)
	}
	sort.Float64s(recent)

	n := len(recent)
	if n%2 == 1 {
		return recent[n/2]
	}
	return (recent[n/2-1] + recent[n/2]) / 2
}

// fitDrift computes the least-squares slope of offset vs elapsed time,
// in ms per second. Returns false when there are too few points or the
// fit is numerically degenerate.
func fitDrift(history []offsetSample) (float64, bool) {
	if len(history) < minDriftSamples {
		return 0, false
	}

	t0 := history[0].at
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range history {
		x := s.at.Sub(t0).Seconds()
		y := s.offsetMs
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	n := float64(len(history))
	denom := n*sumXX - sumX*sumX
	if denom < 1e-9 {
		return 0, false
	}
	return (n*sumXY - sumX*sumY) / denom, true
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
