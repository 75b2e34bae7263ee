package domain

import (
	"fmt"
	"math"
	"time"
)

// Target is the network entity being evaluated (IP, domain, hash)
type Target string

// Validate checks that the target is usable as a cache key
func (t Target) Validate() error {
	if t == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidArgument)
	}
	return nil
}

// Report is one peer's opinion about a target
type Report struct {
	Peer  PeerID  `json:"peer"`
	Score float64 `json:"score"`
}

// NetworkOpinion is the aggregated verdict about a target
type NetworkOpinion struct {
	Target            Target    `json:"target"`
	Score             float64   `json:"score"`
	Confidence        float64   `json:"confidence"`
	ContributingCount int       `json:"contributing_count"`
	Timestamp         time.Time `json:"timestamp"`
}

// Validate checks the invariants of an opinion read back from storage
func (o NetworkOpinion) Validate() error {
	if err := o.Target.Validate(); err != nil {
		return err
	}
	if !inUnit(o.Score) || !inUnit(o.Confidence) {
		return fmt.Errorf("score %v or confidence %v outside [0,1]", o.Score, o.Confidence)
	}
	if o.ContributingCount < 0 {
		return fmt.Errorf("negative contributing count %d", o.ContributingCount)
	}
	return nil
}

// CachedOpinion is a NetworkOpinion with the time it was cached
type CachedOpinion struct {
	NetworkOpinion
	CachedAt time.Time `json:"cached_at"`
}

// Fresh reports whether the record is still valid at now for the given ttl.
// A record is valid while now - cached_at <= ttl.
func (c CachedOpinion) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.CachedAt) <= ttl
}

// ValidScore reports whether a reported score can take part in aggregation
func ValidScore(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0)
}
