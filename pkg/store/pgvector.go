package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/reviewground/internal/models"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ivfflatLists is the list count of the embedding index. Search probes every
// list so the paper_id filter cannot starve the result set.
const ivfflatLists = 100

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
	Logger     *slog.Logger
}

// VectorStore keeps paper chunks in a pgvector table, one row per chunk,
// searched by cosine distance.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "paper_chunks"
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // text-embedding-3-small
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &VectorStore{
		config: config,
		pool:   pool,
		logger: config.Logger.With("component", "pgvector", "table", config.TableName),
	}, nil
}

// EnsureCollection creates the extension, table and cosine index when absent.
func (vs *VectorStore) EnsureCollection(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL,
			content TEXT NOT NULL,
			section TEXT,
			chunk_index INTEGER NOT NULL,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createPaperIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_paper_id_idx ON %s (paper_id)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, createPaperIndex); err != nil {
		return fmt.Errorf("failed to create paper index: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d)`,
		vs.config.TableName, vs.config.TableName, ivfflatLists)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	vs.logger.Debug("collection ready", "dim", vs.config.VectorDim)
	return nil
}

func (vs *VectorStore) CountByPaperID(ctx context.Context, paperID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE paper_id = $1`, vs.config.TableName)

	var count int
	if err := vs.pool.QueryRow(ctx, query, paperID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks for paper %s: %w", paperID, err)
	}
	return count, nil
}

// UpsertBatch writes points in transactions of BatchSize rows. A point whose
// id already exists is overwritten.
func (vs *VectorStore) UpsertBatch(ctx context.Context, points []models.IndexedPoint) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, paper_id, content, section, chunk_index, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			paper_id = EXCLUDED.paper_id,
			content = EXCLUDED.content,
			section = EXCLUDED.section,
			chunk_index = EXCLUDED.chunk_index,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	for start := 0; start < len(points); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(points))

		batch := &pgx.Batch{}
		for _, p := range points[start:end] {
			if len(p.Vector) != vs.config.VectorDim {
				return fmt.Errorf("%w: point %s has %d, want %d", ErrDimensionMismatch, p.ID, len(p.Vector), vs.config.VectorDim)
			}
			batch.Queue(stmt,
				p.ID,
				p.Payload.PaperID,
				sanitizeUTF8(p.Payload.Text),
				sanitizeUTF8(p.Payload.Section),
				p.Payload.Index,
				pgvector.NewVector(p.Vector),
			)
		}

		if err := pgx.BeginFunc(ctx, vs.pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, batch).Close()
		}); err != nil {
			return fmt.Errorf("failed to upsert chunks %d-%d: %w", start, end, err)
		}
	}

	vs.logger.Debug("upserted points", "count", len(points))
	return nil
}

// Search returns the limit chunks of paperID closest to vector, highest
// cosine similarity first.
func (vs *VectorStore) Search(ctx context.Context, vector []float32, paperID string, limit int) ([]models.SearchResult, error) {
	if len(vector) != vs.config.VectorDim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), vs.config.VectorDim)
	}
	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, paper_id, content, COALESCE(section, ''), 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE paper_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vs.config.TableName)

	var results []models.SearchResult
	err := pgx.BeginFunc(ctx, vs.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", ivfflatLists)); err != nil {
			return fmt.Errorf("failed to set probes: %w", err)
		}

		rows, err := tx.Query(ctx, query, pgvector.NewVector(vector), paperID, limit)
		if err != nil {
			return fmt.Errorf("failed to query chunks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r models.SearchResult
			if err := rows.Scan(&r.ID, &r.PaperID, &r.Content, &r.SectionName, &r.Score); err != nil {
				return fmt.Errorf("failed to scan row: %w", err)
			}
			results = append(results, r)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes; Postgres TEXT rejects them.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
