package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

const defaultLookupLimit = 3

// Store is a sqlite-backed retrieval index partitioned by identifier.
type Store struct {
	db       *sql.DB
	embedder EmbeddingProvider
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewStore opens (or creates) the retrieval database at path.
func NewStore(path string, embedder EmbeddingProvider, logger zerolog.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open retrieval database: %w", err)
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identifier TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_identifier ON documents(identifier);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create retrieval schema: %w", err)
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS document_vectors USING vec0(
			document_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.embedder.Dimension())

	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Add indexes one document under an identifier.
func (s *Store) Add(ctx context.Context, identifier, content string) error {
	if identifier == "" {
		return fmt.Errorf("retrieval identifier cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("document content cannot be empty")
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed document: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (identifier, content, created_at) VALUES (?, ?, strftime('%s','now'))`,
		identifier, content)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	docID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO document_vectors (document_id, embedding) VALUES (?, ?)`,
		fmt.Sprintf("%d", docID), string(embeddingJSON)); err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}

	return tx.Commit()
}

// Query returns the closest documents for text under an identifier, joined
// into one context string. A miss is a non-success Result, not an error.
func (s *Store) Query(ctx context.Context, text, identifier string) (Result, error) {
	if identifier == "" {
		return Result{}, fmt.Errorf("retrieval identifier cannot be empty")
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("failed to embed query: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	query := `
		SELECT d.content
		FROM document_vectors v
		JOIN documents d ON d.id = CAST(v.document_id AS INTEGER)
		WHERE d.identifier = ?
		ORDER BY vec_distance_cosine(v.embedding, ?) ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, identifier, string(embeddingJSON), defaultLookupLimit)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval query failed: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return Result{}, err
		}
		parts = append(parts, content)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	if len(parts) == 0 {
		s.logger.Debug().Str("identifier", identifier).Msg("Retrieval lookup found nothing")
		return Result{Success: false}, nil
	}

	return Result{
		Success: true,
		Context: strings.Join(parts, "\n\n---\n\n"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
