package geo

import (
	"math"
	"sync"

	"github.com/kimk1029/policevsthieves/internal/game"
)

const (
	earthRadiusMeters = 6371000.0

	// Incremental moves below this are treated as GPS jitter and do not
	// accumulate distance or steps.
	noiseFloorMeters = 1.5

	stepLengthMeters = 0.75
)

// DistanceMeters returns the great-circle (haversine) distance between
// two coordinates.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := math.Pi / 180.0
	dLat := (lat2 - lat1) * toRad
	dLng := (lng2 - lng1) * toRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// MovementStats is a read-only snapshot of a tracking session.
// Distance and steps never decrease within one session.
type MovementStats struct {
	CumulativeDistanceMeters float64 `json:"cumulativeDistanceMeters"`
	MaxSpeedKmh              float64 `json:"maxSpeedKmh"`
	EstimatedSteps           int     `json:"estimatedSteps"`
}

// MovementTracker accumulates distance, step and speed estimates from a
// sequence of location samples. Updates while tracking is inactive are
// silently dropped; toggling tracking off resets all accumulators.
type MovementTracker struct {
	mu       sync.Mutex
	active   bool
	prev     *game.LocationSample
	distance float64
	maxSpeed float64
	steps    int
}

func NewMovementTracker() *MovementTracker {
	return &MovementTracker{}
}

// SetActive toggles recording. Turning it off clears the accumulators
// and the previous-sample window.
func (t *MovementTracker) SetActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = active
	if !active {
		t.resetLocked()
	}
}

// Reset clears all accumulators without changing the active flag.
func (t *MovementTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *MovementTracker) resetLocked() {
	t.prev = nil
	t.distance = 0
	t.maxSpeed = 0
	t.steps = 0
}

// Update folds a new location sample into the session statistics.
func (t *MovementTracker) Update(s game.LocationSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return
	}
	if !finiteCoords(s.Lat, s.Lng) {
		return
	}

	prev := t.prev
	sample := s
	t.prev = &sample

	if prev == nil || !finiteCoords(prev.Lat, prev.Lng) {
		return
	}
	elapsedMs := s.CapturedAtMs - prev.CapturedAtMs
	if elapsedMs <= 0 {
		return
	}

	d := DistanceMeters(prev.Lat, prev.Lng, s.Lat, s.Lng)
	if d < noiseFloorMeters {
		return
	}

	t.distance += d
	t.steps = int(math.Round(t.distance / stepLengthMeters))

	// m/ms → km/h, rounded to one decimal.
	kmh := math.Round(d/float64(elapsedMs)*3600*10) / 10
	if kmh > t.maxSpeed {
		t.maxSpeed = kmh
	}
}

// Stats returns a snapshot of the current session statistics.
func (t *MovementTracker) Stats() MovementStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return MovementStats{
		CumulativeDistanceMeters: t.distance,
		MaxSpeedKmh:              t.maxSpeed,
		EstimatedSteps:           t.steps,
	}
}

func finiteCoords(lat, lng float64) bool {
	return !math.IsNaN(lat) && !math.IsInf(lat, 0) &&
		!math.IsNaN(lng) && !math.IsInf(lng, 0)
}
