package geo

import "testing"

func TestBattleZoneInactive(t *testing.T) {
	if _, ok := BattleZoneRadiusMeters(0, 600, 1000); ok {
		t.Error("expected inactive when no deadline is set")
	}
	if _, ok := BattleZoneRadiusMeters(1000, 0, 1000); ok {
		t.Error("expected inactive for zero duration")
	}
	if _, ok := BattleZoneRadiusMeters(1000, -5, 1000); ok {
		t.Error("expected inactive for negative duration")
	}
}

func TestBattleZoneRadius(t *testing.T) {
	const now = int64(1_700_000_000_000)
	const chase = 600 // seconds

	tests := []struct {
		name string
		ends int64
		want float64
	}{
		{"chase just started", now + 600_000, 1000},
		{"before chase start", now + 700_000, 1000},
		{"exactly at shrink threshold", now + 180_000, 1000},
		{"halfway through shrink", now + 90_000, 550},
		{"at deadline", now, 100},
		{"past deadline", now - 60_000, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BattleZoneRadiusMeters(tt.ends, chase, now)
			if !ok {
				t.Fatal("expected active boundary")
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBattleZoneMonotoneShrink(t *testing.T) {
	const chase = 600
	const ends = int64(10_000_000_000)
	shrinkStart := ends - int64(0.3*600_000)

	prev := 1000.0
	for now := shrinkStart; now <= ends; now += 1000 {
		got, ok := BattleZoneRadiusMeters(ends, chase, now)
		if !ok {
			t.Fatal("expected active boundary")
		}
		if got > prev {
			t.Fatalf("radius grew from %v to %v at now=%d", prev, got, now)
		}
		if got < 100 {
			t.Fatalf("radius %v below minimum at now=%d", got, now)
		}
		prev = got
	}
	if prev != 100 {
		t.Errorf("radius at deadline = %v, want 100", prev)
	}
}
