package codec

import (
	"fmt"
	"io"
	"time"

	"peertrust/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export of trust seeds
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlSeed keeps timestamps as strings so that a hand-written file can omit them
type yamlSeed struct {
	Peers []domain.PeerInfo `yaml:"peers,omitempty"`
	Trust []yamlTrust       `yaml:"trust"`
}

type yamlTrust struct {
	ID                  string  `yaml:"id"`
	Trust               float64 `yaml:"trust"`
	RecommendationTrust float64 `yaml:"recommendation_trust"`
	LastUpdate          string  `yaml:"last_update,omitempty"`
}

// Parse imports a trust seed from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*Seed, error) {
	var ys yamlSeed
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&ys); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seed := &Seed{Peers: ys.Peers}
	for _, yt := range ys.Trust {
		d := domain.PeerTrustData{
			ID:                  domain.PeerID(yt.ID),
			Trust:               yt.Trust,
			RecommendationTrust: yt.RecommendationTrust,
		}
		if yt.LastUpdate != "" {
			ts, err := time.Parse(time.RFC3339, yt.LastUpdate)
			if err != nil {
				return nil, fmt.Errorf("peer %s: invalid last_update %q: %w", yt.ID, yt.LastUpdate, err)
			}
			d.LastUpdate = ts.UTC()
		}
		seed.Trust = append(seed.Trust, d)
	}

	if err := validateSeed(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// Export exports a trust seed to YAML
func (c *YAMLCodec) Export(seed *Seed, w io.Writer) error {
	ys := yamlSeed{Peers: seed.Peers}
	for _, d := range seed.Trust {
		yt := yamlTrust{
			ID:                  string(d.ID),
			Trust:               d.Trust,
			RecommendationTrust: d.RecommendationTrust,
		}
		if !d.LastUpdate.IsZero() {
			yt.LastUpdate = d.LastUpdate.UTC().Format(time.RFC3339Nano)
		}
		ys.Trust = append(ys.Trust, yt)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(ys); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

func validateSeed(seed *Seed) error {
	for i, p := range seed.Peers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("peer %d: %w", i, err)
		}
	}
	for i, d := range seed.Trust {
		if d.ID == "" {
			return fmt.Errorf("trust record %d: %w: peer id is required", i, domain.ErrInvalidArgument)
		}
	}
	return nil
}
