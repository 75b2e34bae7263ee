package domain

import (
	"fmt"
	"math"
	"time"
)

// PeerID uniquely identifies a peer
type PeerID string

// OrganisationID identifies the organisation a peer is affiliated with
type OrganisationID string

// PeerInfo is the connection-time identity of a peer
type PeerInfo struct {
	ID           PeerID         `json:"id" yaml:"id"`
	Address      string         `json:"address" yaml:"address"`
	Organisation OrganisationID `json:"organisation" yaml:"organisation"`
}

// Validate checks that the peer carries an identifier
func (p PeerInfo) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: peer id is required", ErrInvalidArgument)
	}
	return nil
}

// PeerTrustData is the trust state recorded for one peer
type PeerTrustData struct {
	ID                  PeerID    `json:"id" yaml:"id"`
	Trust               float64   `json:"trust" yaml:"trust"`
	RecommendationTrust float64   `json:"recommendation_trust" yaml:"recommendation_trust"`
	LastUpdate          time.Time `json:"last_update" yaml:"last_update"`
}

// Normalize returns a copy that is safe to persist: trust values are clamped
// into [0,1] and the timestamp is converted to UTC. NaN values and a missing
// id are rejected.
func (d PeerTrustData) Normalize() (PeerTrustData, error) {
	if d.ID == "" {
		return d, fmt.Errorf("%w: peer id is required", ErrInvalidArgument)
	}
	if math.IsNaN(d.Trust) || math.IsNaN(d.RecommendationTrust) {
		return d, fmt.Errorf("%w: trust of peer %s is NaN", ErrInvalidArgument, d.ID)
	}
	d.Trust = ClampUnit(d.Trust)
	d.RecommendationTrust = ClampUnit(d.RecommendationTrust)
	d.LastUpdate = d.LastUpdate.UTC()
	return d, nil
}

// InRange reports whether both trust values lie in [0,1]
func (d PeerTrustData) InRange() bool {
	return inUnit(d.Trust) && inUnit(d.RecommendationTrust)
}

// TrustMatrix maps peers to their trust records
type TrustMatrix map[PeerID]PeerTrustData

// IDs returns the peer ids of the matrix in sorted order
func (m TrustMatrix) IDs() []PeerID {
	ids := make([]PeerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	SortPeerIDs(ids)
	return ids
}

// ClampUnit restricts v to [0,1]
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// OrganisationSet is a set of organisations used for peer filtering
type OrganisationSet map[OrganisationID]struct{}

// NewOrganisationSet builds a set from the given organisations
func NewOrganisationSet(orgs ...OrganisationID) OrganisationSet {
	s := make(OrganisationSet, len(orgs))
	for _, o := range orgs {
		s[o] = struct{}{}
	}
	return s
}

// Contains reports whether org is in the set
func (s OrganisationSet) Contains(org OrganisationID) bool {
	_, ok := s[org]
	return ok
}
