// Package ingest receives connected-peer snapshots and opinion report batches
// from the transport layer over NATS.
//
// Peer snapshots carry the full connected-peer list:
//
//	{"peers": [{"id": "...", "address": "...", "organisation": "..."}]}
//
// Report batches carry the reports of one target:
//
//	{"target": "...", "reports": [{"peer": "...", "score": 0.7}]}
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/metrics"
	"peertrust/internal/service"

	logging "github.com/ipfs/go-log/v2"
	"github.com/nats-io/nats.go"
)

var log = logging.Logger("peertrust/ingest")

// Config holds NATS subscription settings
type Config struct {
	URL            string
	Name           string
	PeersSubject   string
	ReportsSubject string
	QueueGroup     string
	// StoreTimeout bounds the store write triggered by one peer snapshot
	StoreTimeout  time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

// PeerSink stores connected-peer snapshots
type PeerSink interface {
	StoreConnectedPeers(ctx context.Context, peers []domain.PeerInfo) error
}

// BatchSink queues report batches for aggregation
type BatchSink interface {
	Submit(batch service.ReportBatch) error
}

// Subscriber consumes transport messages
type Subscriber struct {
	cfg     Config
	peers   PeerSink
	batches BatchSink

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

type peerSnapshot struct {
	Peers []domain.PeerInfo `json:"peers"`
}

// New creates a subscriber. Call Start to connect.
func New(cfg Config, peers PeerSink, batches BatchSink) *Subscriber {
	if cfg.Name == "" {
		cfg.Name = "peertrust"
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	return &Subscriber{cfg: cfg, peers: peers, batches: batches}
}

// Start connects to NATS and subscribes to both subjects
func (s *Subscriber) Start() error {
	opts := []nats.Option{
		nats.Name(s.cfg.Name),
		nats.ReconnectWait(s.cfg.ReconnectWait),
		nats.MaxReconnects(s.cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(s.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", s.cfg.URL, err)
	}

	peersSub, err := conn.QueueSubscribe(s.cfg.PeersSubject, s.cfg.QueueGroup, s.HandlePeers)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.PeersSubject, err)
	}
	reportsSub, err := conn.QueueSubscribe(s.cfg.ReportsSubject, s.cfg.QueueGroup, s.HandleReports)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.ReportsSubject, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.subs = []*nats.Subscription{peersSub, reportsSub}
	s.mu.Unlock()

	log.Infof("subscribed to %s and %s (queue %q)", s.cfg.PeersSubject, s.cfg.ReportsSubject, s.cfg.QueueGroup)
	return nil
}

// Close drains the subscriptions and closes the connection
func (s *Subscriber) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.subs = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// HandlePeers stores a connected-peer snapshot
func (s *Subscriber) HandlePeers(msg *nats.Msg) {
	peers, err := DecodePeers(msg.Data)
	if err != nil {
		metrics.IngestMessages.WithLabelValues("peers", "invalid").Inc()
		log.Warnf("discarding peer snapshot on %s: %v", msg.Subject, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()
	if err := s.peers.StoreConnectedPeers(ctx, peers); err != nil {
		metrics.IngestMessages.WithLabelValues("peers", metrics.ErrorKind(err)).Inc()
		log.Errorf("failed to store %d connected peers: %v", len(peers), err)
		return
	}
	metrics.IngestMessages.WithLabelValues("peers", "ok").Inc()
}

// HandleReports queues a report batch
func (s *Subscriber) HandleReports(msg *nats.Msg) {
	batch, err := DecodeBatch(msg.Data)
	if err != nil {
		metrics.IngestMessages.WithLabelValues("reports", "invalid").Inc()
		log.Warnf("discarding report batch on %s: %v", msg.Subject, err)
		return
	}

	if err := s.batches.Submit(batch); err != nil {
		metrics.IngestMessages.WithLabelValues("reports", "dropped").Inc()
		log.Warnf("dropping report batch for %s: %v", batch.Target, err)
		return
	}
	metrics.IngestMessages.WithLabelValues("reports", "ok").Inc()
}

// DecodePeers parses a connected-peer snapshot
func DecodePeers(data []byte) ([]domain.PeerInfo, error) {
	var snap peerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: peer snapshot: %v", domain.ErrInvalidArgument, err)
	}
	for _, p := range snap.Peers {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	if snap.Peers == nil {
		snap.Peers = []domain.PeerInfo{}
	}
	return snap.Peers, nil
}

// DecodeBatch parses a report batch
func DecodeBatch(data []byte) (service.ReportBatch, error) {
	var batch service.ReportBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return batch, fmt.Errorf("%w: report batch: %v", domain.ErrInvalidArgument, err)
	}
	if err := batch.Validate(); err != nil {
		return batch, err
	}
	for _, r := range batch.Reports {
		if r.Peer == "" {
			return batch, fmt.Errorf("%w: report without peer id for %s", domain.ErrInvalidArgument, batch.Target)
		}
	}
	return batch, nil
}
