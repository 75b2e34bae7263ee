package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/repository"
	"peertrust/internal/repository/storetest"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// ============================================================================
// Contract
// ============================================================================

func TestRepositoryContract(t *testing.T) {
	storetest.Run(t, storetest.Backend{
		New: func(t *testing.T) repository.TrustStore {
			return newTestRepo(t)
		},
		CorruptTrust: func(t *testing.T, s repository.TrustStore, id domain.PeerID, data []byte) {
			_, err := s.(*Repository).db.Exec(
				`INSERT OR REPLACE INTO peer_trust (id, data) VALUES (?, ?)`, string(id), string(data))
			assertNoError(t, err)
		},
		CorruptOpinion: func(t *testing.T, s repository.TrustStore, target domain.Target, data []byte) {
			_, err := s.(*Repository).db.Exec(
				`INSERT OR REPLACE INTO network_opinions (target, data, cached_at) VALUES (?, ?, ?)`,
				string(target), string(data), time.Now().UTC().Format(time.RFC3339Nano))
			assertNoError(t, err)
		},
	})
}

// ============================================================================
// Helper Tests
// ============================================================================

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "?"},
		{3, "?, ?, ?"},
	}
	for _, tt := range tests {
		assertEqual(t, tt.want, placeholders(tt.n))
	}
}

func TestDSN(t *testing.T) {
	assertEqual(t, ":memory:", dsn(":memory:"))
	assertEqual(t, "/tmp/t.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dsn("/tmp/t.db"))
}

// ============================================================================
// File Persistence
// ============================================================================

func TestTrustSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trust.db")

	repo, err := New(path)
	assertNoError(t, err)
	assertNoError(t, repo.StorePeerTrust(ctx, domain.PeerTrustData{ID: "peer-a", Trust: 0.6, RecommendationTrust: 0.9}))
	assertNoError(t, repo.StoreConnectedPeers(ctx, []domain.PeerInfo{{ID: "peer-a", Organisation: "org-x"}}))
	assertNoError(t, repo.Close())

	repo, err = New(path)
	assertNoError(t, err)
	defer repo.Close()

	got, err := repo.GetPeerTrust(ctx, domain.ByPeerID("peer-a"))
	assertNoError(t, err)
	if got == nil {
		t.Fatal("expected trust record after reopen")
	}
	assertEqual(t, 0.9, got.RecommendationTrust)

	peers, err := repo.GetConnectedPeers(ctx)
	assertNoError(t, err)
	assertEqual(t, 1, len(peers))
	assertEqual(t, domain.OrganisationID("org-x"), peers[0].Organisation)
}

func TestClosedRepositoryIsUnavailable(t *testing.T) {
	repo, err := New(":memory:")
	assertNoError(t, err)
	assertNoError(t, repo.Close())

	_, err = repo.GetPeerTrust(context.Background(), domain.ByPeerID("peer-a"))
	if !domain.IsOperational(err) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestCanceledContextIsNotUnavailable(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetPeerTrust(ctx, domain.ByPeerID("peer-a"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if domain.IsOperational(err) {
		t.Fatalf("cancellation reported as store failure: %v", err)
	}

	err = repo.StoreConnectedPeers(ctx, []domain.PeerInfo{{ID: "peer-a"}})
	if !errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected bare context canceled, got %v", err)
	}
}
