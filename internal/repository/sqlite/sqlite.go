package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"peertrust/internal/codec"
	"peertrust/internal/domain"
	"peertrust/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.TrustStore using SQLite
type Repository struct {
	db   *sql.DB
	keys repository.Keys
}

// New opens (or creates) the database at dbPath and migrates the schema
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db, keys: repository.NewKeys("")}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS connected_peers (
		position INTEGER PRIMARY KEY,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS peer_trust (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS network_opinions (
		target TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		cached_at DATETIME NOT NULL
	);
	`

	_, err := r.db.Exec(schema)
	return err
}

// StoreConnectedPeers replaces the connected-peer list in one transaction
func (r *Repository) StoreConnectedPeers(ctx context.Context, peers []domain.PeerInfo) error {
	entries, err := codec.EncodePeerInfos(peers)
	if err != nil {
		return fmt.Errorf("encode peers: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM connected_peers`); err != nil {
		return unavailable("clear connected peers", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO connected_peers (position, data) VALUES (?, ?)`)
	if err != nil {
		return unavailable("prepare peer statement", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		if _, err := stmt.ExecContext(ctx, i, string(entry)); err != nil {
			return unavailable("insert connected peer", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit connected peers", err)
	}
	return nil
}

// GetConnectedPeers returns the connected-peer list in stored order
func (r *Repository) GetConnectedPeers(ctx context.Context) ([]domain.PeerInfo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM connected_peers ORDER BY position`)
	if err != nil {
		return nil, unavailable("query connected peers", err)
	}
	defer rows.Close()

	peers := make([]domain.PeerInfo, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, unavailable("scan connected peer", err)
		}
		p, err := codec.DecodePeerInfo(r.keys.ConnectedPeers(), []byte(data))
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate connected peers", err)
	}
	return peers, nil
}

// StorePeerTrust overwrites the trust record of data.ID
func (r *Repository) StorePeerTrust(ctx context.Context, data domain.PeerTrustData) error {
	data, err := data.Normalize()
	if err != nil {
		return err
	}
	encoded, err := codec.EncodePeerTrust(data)
	if err != nil {
		return fmt.Errorf("encode trust of %s: %w", data.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO peer_trust (id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
	`, string(data.ID), string(encoded))
	if err != nil {
		return unavailable("store trust of "+string(data.ID), err)
	}
	return nil
}

// StorePeerTrustMatrix overwrites each record with its own statement; no
// transaction spans the matrix
func (r *Repository) StorePeerTrustMatrix(ctx context.Context, matrix domain.TrustMatrix) error {
	return repository.WriteMatrix(ctx, matrix, r.StorePeerTrust)
}

// GetPeerTrust returns the trust record of a peer, or nil
func (r *Repository) GetPeerTrust(ctx context.Context, ref domain.PeerRef) (*domain.PeerTrustData, error) {
	id, err := ref.Resolve()
	if err != nil {
		return nil, err
	}

	var data string
	err = r.db.QueryRowContext(ctx, `SELECT data FROM peer_trust WHERE id = ?`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get trust of "+string(id), err)
	}

	d, err := codec.DecodePeerTrust(r.keys.PeerTrust(id), []byte(data))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetPeersTrust returns the records that exist for the referenced peers
func (r *Repository) GetPeersTrust(ctx context.Context, refs []domain.PeerRef) (domain.TrustMatrix, error) {
	ids, err := domain.ResolveAll(refs)
	if err != nil {
		return nil, err
	}
	m := make(domain.TrustMatrix, len(ids))
	if len(ids) == 0 {
		return m, nil
	}

	query := `SELECT id, data FROM peer_trust WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, query, peerIDArgs(ids)...)
	if err != nil {
		return nil, unavailable("query trust matrix", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, unavailable("scan trust record", err)
		}
		peerID := domain.PeerID(id)
		d, err := codec.DecodePeerTrust(r.keys.PeerTrust(peerID), []byte(data))
		if err != nil {
			return nil, err
		}
		m[peerID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate trust records", err)
	}
	return m, nil
}

// DeletePeerTrust removes the trust record of a peer
func (r *Repository) DeletePeerTrust(ctx context.Context, ref domain.PeerRef) error {
	id, err := ref.Resolve()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM peer_trust WHERE id = ?`, string(id)); err != nil {
		return unavailable("delete trust of "+string(id), err)
	}
	return nil
}

// CacheNetworkOpinion overwrites the cached opinion for its target
func (r *Repository) CacheNetworkOpinion(ctx context.Context, opinion domain.NetworkOpinion, cachedAt time.Time) error {
	if err := opinion.Target.Validate(); err != nil {
		return err
	}
	cachedAt = cachedAt.UTC()
	encoded, err := codec.EncodeCachedOpinion(domain.CachedOpinion{NetworkOpinion: opinion, CachedAt: cachedAt})
	if err != nil {
		return fmt.Errorf("encode opinion for %s: %w", opinion.Target, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO network_opinions (target, data, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(target) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at
	`, string(opinion.Target), string(encoded), cachedAt.Format(time.RFC3339Nano))
	if err != nil {
		return unavailable("cache opinion for "+string(opinion.Target), err)
	}
	return nil
}

// GetCachedNetworkOpinion returns the cached opinion if it is still fresh
func (r *Repository) GetCachedNetworkOpinion(ctx context.Context, target domain.Target, ttl time.Duration, now time.Time) (*domain.NetworkOpinion, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM network_opinions WHERE target = ?`, string(target)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get cached opinion for "+string(target), err)
	}

	rec, err := codec.DecodeCachedOpinion(r.keys.NetworkOpinion(target), []byte(data))
	if err != nil {
		return nil, err
	}
	if !rec.Fresh(ttl, now) {
		return nil, nil
	}
	return &rec.NetworkOpinion, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

var _ repository.TrustStore = (*Repository)(nil)
