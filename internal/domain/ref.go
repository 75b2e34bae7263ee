package domain

import (
	"fmt"
	"sort"
)

type refKind uint8

const (
	refNone refKind = iota
	refByID
	refByInfo
)

// PeerRef names a peer either by its id or by its connection info. Build one
// with ByPeerID or ByPeerInfo; the zero value refers to no peer.
type PeerRef struct {
	kind refKind
	id   PeerID
	info PeerInfo
}

// ByPeerID refers to a peer by id
func ByPeerID(id PeerID) PeerRef {
	return PeerRef{kind: refByID, id: id}
}

// ByPeerInfo refers to a peer by its connection info
func ByPeerInfo(info PeerInfo) PeerRef {
	return PeerRef{kind: refByInfo, info: info}
}

// RefsByID builds references for a list of ids
func RefsByID(ids []PeerID) []PeerRef {
	refs := make([]PeerRef, len(ids))
	for i, id := range ids {
		refs[i] = ByPeerID(id)
	}
	return refs
}

// RefsByInfo builds references for a list of peers
func RefsByInfo(peers []PeerInfo) []PeerRef {
	refs := make([]PeerRef, len(peers))
	for i, p := range peers {
		refs[i] = ByPeerInfo(p)
	}
	return refs
}

// Resolve returns the referenced peer id
func (r PeerRef) Resolve() (PeerID, error) {
	var id PeerID
	switch r.kind {
	case refByID:
		id = r.id
	case refByInfo:
		id = r.info.ID
	default:
		return "", fmt.Errorf("%w: empty peer reference", ErrInvalidArgument)
	}
	if id == "" {
		return "", fmt.Errorf("%w: peer id is required", ErrInvalidArgument)
	}
	return id, nil
}

// ResolveAll resolves every reference, failing on the first malformed one
func ResolveAll(refs []PeerRef) ([]PeerID, error) {
	ids := make([]PeerID, 0, len(refs))
	for _, r := range refs {
		id, err := r.Resolve()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SortPeerIDs sorts ids in place
func SortPeerIDs(ids []PeerID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
