// Package loader moves trust seeds between files and a trust store.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"peertrust/internal/codec"
	"peertrust/internal/domain"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("peertrust/loader")

// Sink receives imported seeds
type Sink interface {
	StoreConnectedPeers(ctx context.Context, peers []domain.PeerInfo) error
	RecordTrustMatrix(ctx context.Context, m domain.TrustMatrix) error
}

// Source provides the data for an export
type Source interface {
	GetConnectedPeers(ctx context.Context) ([]domain.PeerInfo, error)
	GetPeersTrust(ctx context.Context, refs []domain.PeerRef) (domain.TrustMatrix, error)
}

// Result summarizes an import
type Result struct {
	Peers   int `json:"peers"`
	Records int `json:"records"`
}

// FormatOf infers the seed format from a file extension
func FormatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// LoadFile reads a seed file. An empty format is inferred from the extension.
func LoadFile(path, format string) (*codec.Seed, error) {
	if format == "" {
		format = FormatOf(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(bytes.NewReader(data), format)
}

// Parse decodes a seed in the given format
func Parse(r io.Reader, format string) (*codec.Seed, error) {
	imp, _, ok := codec.ForFormat(format)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported seed format %q", domain.ErrInvalidArgument, format)
	}
	return imp.Parse(r)
}

// Apply writes a seed into sink. The connected-peer list is only replaced
// when the seed carries peers.
func Apply(ctx context.Context, sink Sink, seed *codec.Seed) (Result, error) {
	var res Result

	if len(seed.Peers) > 0 {
		if err := sink.StoreConnectedPeers(ctx, seed.Peers); err != nil {
			return res, fmt.Errorf("store connected peers: %w", err)
		}
		res.Peers = len(seed.Peers)
	}

	m := seed.Matrix()
	if len(m) > 0 {
		if err := sink.RecordTrustMatrix(ctx, m); err != nil {
			return res, fmt.Errorf("record trust matrix: %w", err)
		}
		res.Records = len(m)
	}

	log.Infof("Imported %d peers and %d trust records", res.Peers, res.Records)
	return res, nil
}

// Snapshot collects the connected peers and the trust records of those peers
// plus any extra ids. Records of peers that are neither connected nor listed
// are not reachable and are left out.
func Snapshot(ctx context.Context, src Source, extra []domain.PeerID) (*codec.Seed, error) {
	peers, err := src.GetConnectedPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("get connected peers: %w", err)
	}

	seen := make(map[domain.PeerID]bool, len(peers)+len(extra))
	var ids []domain.PeerID
	add := func(id domain.PeerID) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, p := range peers {
		add(p.ID)
	}
	for _, id := range extra {
		add(id)
	}

	m, err := src.GetPeersTrust(ctx, domain.RefsByID(ids))
	if err != nil {
		return nil, fmt.Errorf("get trust records: %w", err)
	}
	return codec.SeedFromMatrix(peers, m), nil
}

// Export encodes a seed in the given format
func Export(seed *codec.Seed, w io.Writer, format string) error {
	_, exp, ok := codec.ForFormat(format)
	if !ok {
		return fmt.Errorf("%w: unsupported seed format %q", domain.ErrInvalidArgument, format)
	}
	return exp.Export(seed, w)
}

// SaveFile writes a seed file. An empty format is inferred from the extension.
func SaveFile(path, format string, seed *codec.Seed) error {
	if format == "" {
		format = FormatOf(path)
	}
	var buf bytes.Buffer
	if err := Export(seed, &buf, format); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
