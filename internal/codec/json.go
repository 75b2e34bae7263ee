package codec

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec handles JSON import/export of trust seeds
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports a trust seed from JSON
func (c *JSONCodec) Parse(r io.Reader) (*Seed, error) {
	var seed Seed
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if err := validateSeed(&seed); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Export exports a trust seed to JSON
func (c *JSONCodec) Export(seed *Seed, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(seed); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
