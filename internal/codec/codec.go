package codec

import (
	"io"

	"peertrust/internal/domain"
)

// Seed is a portable snapshot of peer identities and their trust records
type Seed struct {
	Peers []domain.PeerInfo      `json:"peers,omitempty" yaml:"peers,omitempty"`
	Trust []domain.PeerTrustData `json:"trust" yaml:"trust"`
}

// Matrix returns the trust records of the seed keyed by peer id.
// A later record for the same peer replaces an earlier one.
func (s *Seed) Matrix() domain.TrustMatrix {
	m := make(domain.TrustMatrix, len(s.Trust))
	for _, d := range s.Trust {
		m[d.ID] = d
	}
	return m
}

// SeedFromMatrix builds a seed with records sorted by peer id
func SeedFromMatrix(peers []domain.PeerInfo, m domain.TrustMatrix) *Seed {
	seed := &Seed{Peers: peers, Trust: make([]domain.PeerTrustData, 0, len(m))}
	for _, id := range m.IDs() {
		seed.Trust = append(seed.Trust, m[id])
	}
	return seed
}

// Importer reads trust seeds from a given format
type Importer interface {
	Parse(r io.Reader) (*Seed, error)
	Format() string
}

// Exporter writes trust seeds in a given format
type Exporter interface {
	Export(seed *Seed, w io.Writer) error
	Format() string
}

// ForFormat returns the codec registered for a format name
func ForFormat(format string) (Importer, Exporter, bool) {
	switch format {
	case "json":
		c := NewJSONCodec()
		return c, c, true
	case "yaml", "yml":
		c := NewYAMLCodec()
		return c, c, true
	default:
		return nil, nil, false
	}
}
