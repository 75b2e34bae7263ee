package codec

import (
	"encoding/json"
	"fmt"

	"peertrust/internal/domain"
)

// Record encoders produce the persisted shapes shared by every store backend:
//
//	connected peer: {id, address, organisation}
//	peer trust:     {id, trust, recommendation_trust, last_update}
//	cached opinion: {target, score, confidence, contributing_count, timestamp, cached_at}
//
// Decoders return an error wrapping domain.ErrDataCorruption when the stored
// bytes do not describe a valid entity.

// EncodePeerInfo serializes one connected-peer entry
func EncodePeerInfo(p domain.PeerInfo) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePeerInfo parses one connected-peer entry
func DecodePeerInfo(key string, data []byte) (domain.PeerInfo, error) {
	var p domain.PeerInfo
	if err := json.Unmarshal(data, &p); err != nil {
		return p, corrupt(key, err)
	}
	if p.ID == "" {
		return p, corrupt(key, fmt.Errorf("missing peer id"))
	}
	return p, nil
}

// EncodePeerInfos serializes a connected-peer list, one entry per peer
func EncodePeerInfos(peers []domain.PeerInfo) ([][]byte, error) {
	out := make([][]byte, 0, len(peers))
	for _, p := range peers {
		data, err := EncodePeerInfo(p)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// EncodePeerTrust serializes a trust record
func EncodePeerTrust(d domain.PeerTrustData) ([]byte, error) {
	return json.Marshal(d)
}

// DecodePeerTrust parses a trust record
func DecodePeerTrust(key string, data []byte) (domain.PeerTrustData, error) {
	var d domain.PeerTrustData
	if err := json.Unmarshal(data, &d); err != nil {
		return d, corrupt(key, err)
	}
	if d.ID == "" {
		return d, corrupt(key, fmt.Errorf("missing peer id"))
	}
	if !d.InRange() {
		return d, corrupt(key, fmt.Errorf("trust values outside [0,1]"))
	}
	return d, nil
}

// EncodeCachedOpinion serializes a cached opinion record
func EncodeCachedOpinion(c domain.CachedOpinion) ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCachedOpinion parses a cached opinion record
func DecodeCachedOpinion(key string, data []byte) (domain.CachedOpinion, error) {
	var c domain.CachedOpinion
	if err := json.Unmarshal(data, &c); err != nil {
		return c, corrupt(key, err)
	}
	if err := c.NetworkOpinion.Validate(); err != nil {
		return c, corrupt(key, err)
	}
	if c.CachedAt.IsZero() {
		return c, corrupt(key, fmt.Errorf("missing cached_at"))
	}
	return c, nil
}

func corrupt(key string, err error) error {
	return fmt.Errorf("%w: record %s: %v", domain.ErrDataCorruption, key, err)
}
