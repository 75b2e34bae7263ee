package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestCachedOpinionFresh(t *testing.T) {
	cachedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := CachedOpinion{CachedAt: cachedAt}
	ttl := time.Minute

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"same instant", cachedAt, true},
		{"one second before expiry", cachedAt.Add(ttl - time.Second), true},
		{"exactly at ttl", cachedAt.Add(ttl), true},
		{"one second after expiry", cachedAt.Add(ttl + time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rec.Fresh(ttl, tt.now); got != tt.want {
				t.Errorf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNetworkOpinionValidate(t *testing.T) {
	valid := NetworkOpinion{Target: "1.2.3.4", Score: 0.4, Confidence: 0.9, ContributingCount: 2}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := []NetworkOpinion{
		{Score: 0.4},
		{Target: "x", Score: 1.2},
		{Target: "x", Confidence: -0.1},
		{Target: "x", ContributingCount: -1},
	}
	for i, o := range bad {
		if err := o.Validate(); err == nil {
			t.Errorf("case %d: expected error for %+v", i, o)
		}
	}
}

func TestValidScore(t *testing.T) {
	if !ValidScore(0.5) {
		t.Error("0.5 should be valid")
	}
	if ValidScore(math.NaN()) || ValidScore(math.Inf(1)) {
		t.Error("NaN and Inf should be invalid")
	}
}

func TestPeerRefResolve(t *testing.T) {
	t.Run("by id", func(t *testing.T) {
		id, err := ByPeerID("p1").Resolve()
		if err != nil || id != "p1" {
			t.Errorf("got %q, %v", id, err)
		}
	})

	t.Run("by info", func(t *testing.T) {
		id, err := ByPeerInfo(PeerInfo{ID: "p2", Organisation: "org"}).Resolve()
		if err != nil || id != "p2" {
			t.Errorf("got %q, %v", id, err)
		}
	})

	t.Run("zero value is invalid", func(t *testing.T) {
		_, err := PeerRef{}.Resolve()
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("empty id is invalid", func(t *testing.T) {
		_, err := ByPeerInfo(PeerInfo{Address: "10.0.0.1"}).Resolve()
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("resolve all stops at first malformed ref", func(t *testing.T) {
		_, err := ResolveAll([]PeerRef{ByPeerID("a"), ByPeerID("")})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("get trust: %w", ErrStoreUnavailable)
	if !IsOperational(wrapped) {
		t.Error("store unavailable should be operational")
	}
	if IsNoVerdict(wrapped) {
		t.Error("store unavailable is not a missing verdict")
	}
	if !IsNoVerdict(fmt.Errorf("aggregate: %w", ErrInsufficientData)) {
		t.Error("insufficient data should mean no verdict")
	}
	if IsOperational(ErrInvalidArgument) {
		t.Error("invalid argument is not operational")
	}
}
