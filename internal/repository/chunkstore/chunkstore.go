// Package chunkstore defines the contract shared by the chunk store
// drivers.
package chunkstore

import (
	"context"
	"time"

	"github.com/opencampus/tutordex/internal/domain"
)

// Store is the driver-independent chunk store interface. Both the
// sqlite and redis drivers implement it; main picks one by config.
type Store interface {
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// WaitForReady blocks until the store responds or the timeout expires.
	WaitForReady(ctx context.Context, timeout time.Duration) error
	// Close releases the connection.
	Close()
	// ScanEmbedded streams embedded chunks to fn, at most limit rows.
	ScanEmbedded(ctx context.Context, limit int, fn func(domain.Chunk) error) error
	// Stats returns per-source corpus counts.
	Stats(ctx context.Context) (domain.CorpusStats, error)
}
