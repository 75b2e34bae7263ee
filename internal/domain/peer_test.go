package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestClampUnit(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}

	for _, tt := range tests {
		if got := ClampUnit(tt.in); got != tt.want {
			t.Errorf("ClampUnit(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPeerTrustDataNormalize(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	t.Run("clamps out of range values", func(t *testing.T) {
		d, err := PeerTrustData{ID: "p1", Trust: 1.4, RecommendationTrust: -0.2, LastUpdate: ts}.Normalize()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Trust != 1 || d.RecommendationTrust != 0 {
			t.Errorf("expected clamped values, got trust=%v rec=%v", d.Trust, d.RecommendationTrust)
		}
		if d.LastUpdate.Location() != time.UTC {
			t.Errorf("expected UTC timestamp, got %v", d.LastUpdate.Location())
		}
		if !d.LastUpdate.Equal(ts) {
			t.Errorf("timestamp changed instant: %v vs %v", d.LastUpdate, ts)
		}
	})

	t.Run("keeps valid values", func(t *testing.T) {
		d, err := PeerTrustData{ID: "p1", Trust: 0.3, RecommendationTrust: 0.9}.Normalize()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Trust != 0.3 || d.RecommendationTrust != 0.9 {
			t.Errorf("values changed: %+v", d)
		}
	})

	t.Run("rejects missing id", func(t *testing.T) {
		_, err := PeerTrustData{Trust: 0.5}.Normalize()
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("rejects NaN", func(t *testing.T) {
		_, err := PeerTrustData{ID: "p1", Trust: math.NaN()}.Normalize()
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPeerTrustDataInRange(t *testing.T) {
	if !(PeerTrustData{Trust: 0, RecommendationTrust: 1}).InRange() {
		t.Error("bounds should be in range")
	}
	if (PeerTrustData{Trust: 1.01}).InRange() {
		t.Error("1.01 should be out of range")
	}
	if (PeerTrustData{RecommendationTrust: math.NaN()}).InRange() {
		t.Error("NaN should be out of range")
	}
}

func TestTrustMatrixIDs(t *testing.T) {
	m := TrustMatrix{
		"c": {ID: "c"},
		"a": {ID: "a"},
		"b": {ID: "b"},
	}
	ids := m.IDs()
	want := []PeerID{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestPeerInfoValidate(t *testing.T) {
	if err := (PeerInfo{ID: "p1"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (PeerInfo{Address: "10.0.0.1"}).Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
