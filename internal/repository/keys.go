package repository

import "peertrust/internal/domain"

// DefaultKeyPrefix namespaces every key written by the trust engine
const DefaultKeyPrefix = "peertrust"

// Keys builds the logical key space shared by the store backends: one key for
// the connected-peer list, one per peer for trust records and one per target
// for cached opinions.
type Keys struct {
	Prefix string
}

// NewKeys returns a key space under prefix, falling back to DefaultKeyPrefix
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{Prefix: prefix}
}

// ConnectedPeers is the key of the connected-peer list
func (k Keys) ConnectedPeers() string {
	return k.Prefix + ":connected_peers"
}

// PeerTrust is the key of a peer's trust record
func (k Keys) PeerTrust(id domain.PeerID) string {
	return k.Prefix + ":peer_trust:" + string(id)
}

// NetworkOpinion is the key of a target's cached opinion
func (k Keys) NetworkOpinion(target domain.Target) string {
	return k.Prefix + ":network_opinion:" + string(target)
}
