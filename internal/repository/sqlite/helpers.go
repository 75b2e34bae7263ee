package sqlite

import (
	"strings"

	"peertrust/internal/domain"
	"peertrust/internal/repository"
)

// dsn adds WAL mode and a busy timeout to file databases
func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return dbPath
	}
	return dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// placeholders returns "?, ?, ..." with n markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// peerIDArgs converts ids into query arguments
func peerIDArgs(ids []domain.PeerID) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	return args
}

func unavailable(op string, err error) error {
	return repository.StoreError(op, err)
}
