// Package redis is the alternate chunk store driver, reading the
// corpus from Redis hashes written by the ingestion job.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/opencampus/tutordex/internal/domain"
)

const (
	// idsKey lists chunk ids in ingestion order.
	idsKey = "tutordex:chunks"
	// chunkKeyPrefix prefixes the per-chunk hash.
	chunkKeyPrefix = "tutordex:chunk:"
)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Store reads chunk rows from Redis via rueidis.
type Store struct {
	client rueidis.Client
}

// NewStore creates a Redis chunk store.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w: %w", err, domain.ErrStoreUnavailable)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// ScanEmbedded streams up to limit chunks that carry an embedding to
// fn, in ingestion order. The id list bounds the rows read; hashes
// whose embedding field is absent or empty are skipped before the
// vector is decoded.
func (s *Store) ScanEmbedded(ctx context.Context, limit int, fn func(domain.Chunk) error) error {
	ids, err := s.chunkIDs(ctx, int64(limit))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, s.client.B().Hgetall().Key(chunkKeyPrefix+id).Build())
	}

	for i, resp := range s.client.DoMulti(ctx, cmds...) {
		fields, err := resp.AsStrMap()
		if err != nil {
			return fmt.Errorf("read chunk %s: %w: %w", ids[i], err, domain.ErrStoreUnavailable)
		}
		if fields["embedding"] == "" {
			continue
		}
		chunk, ok := chunkFromHash(ids[i], fields)
		if !ok {
			continue
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Stats counts total and embedded chunks per source. Field lengths
// are probed with HSTRLEN so vectors are never transferred.
func (s *Store) Stats(ctx context.Context) (domain.CorpusStats, error) {
	ids, err := s.chunkIDs(ctx, -1)
	if err != nil {
		return domain.CorpusStats{}, err
	}

	var stats domain.CorpusStats
	if len(ids) == 0 {
		return stats, nil
	}

	cmds := make(rueidis.Commands, 0, len(ids)*2)
	for _, id := range ids {
		key := chunkKeyPrefix + id
		cmds = append(cmds,
			s.client.B().Hget().Key(key).Field("source_kind").Build(),
			s.client.B().Hstrlen().Key(key).Field("embedding").Build(),
		)
	}

	resps := s.client.DoMulti(ctx, cmds...)
	for i := 0; i < len(resps); i += 2 {
		source, err := resps[i].ToString()
		if err != nil && !rueidis.IsRedisNil(err) {
			return domain.CorpusStats{}, fmt.Errorf("read source: %w: %w", err, domain.ErrStoreUnavailable)
		}
		embLen, err := resps[i+1].AsInt64()
		if err != nil && !rueidis.IsRedisNil(err) {
			return domain.CorpusStats{}, fmt.Errorf("read embedding length: %w: %w", err, domain.ErrStoreUnavailable)
		}

		embedded := embLen > 0
		switch domain.SourceKind(source) {
		case domain.SourceDiscourse:
			stats.DiscourseChunks++
			if embedded {
				stats.DiscourseEmbedded++
			}
		case domain.SourceDocumentation:
			stats.DocumentationChunks++
			if embedded {
				stats.DocumentationEmbedded++
			}
		}
	}
	return stats, nil
}

// chunkIDs reads up to limit ids from the id list; limit < 0 reads all.
func (s *Store) chunkIDs(ctx context.Context, limit int64) ([]string, error) {
	stop := limit - 1
	if limit < 0 {
		stop = -1
	}
	cmd := s.client.B().Lrange().Key(idsKey).Start(0).Stop(stop).Build()
	ids, err := s.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w: %w", err, domain.ErrStoreUnavailable)
	}
	return ids, nil
}

func chunkFromHash(id string, fields map[string]string) (domain.Chunk, bool) {
	chunkID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return domain.Chunk{}, false
	}
	ordinal, _ := strconv.Atoi(fields["ordinal"])

	var vec []float32
	if err := json.Unmarshal([]byte(fields["embedding"]), &vec); err != nil || len(vec) == 0 {
		return domain.Chunk{}, false
	}

	return domain.Chunk{
		ID:        chunkID,
		Source:    domain.SourceKind(fields["source_kind"]),
		Title:     fields["title"],
		Ordinal:   ordinal,
		Content:   fields["content"],
		URL:       fields["url"],
		Embedding: vec,
	}, true
}
