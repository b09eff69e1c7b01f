package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sqliteKnowledgeSchemaV1 = `
CREATE TABLE IF NOT EXISTS knowledge_chunks (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    metadata_json TEXT NOT NULL DEFAULT '{}',
    embedding_json TEXT NOT NULL,
    model TEXT NOT NULL,
    created_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore keeps chunks and their embeddings in a single SQLite table and
// ranks them by cosine similarity in memory. It is meant for local use where
// the number of stored chunks stays small.
type SQLiteStore struct {
	mu        sync.Mutex
	db        *sql.DB
	embedder  Embedder
	chunkSize int
	closed    bool
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string, embedder Embedder, chunkSize int) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite knowledge store: empty dsn")
	}
	if embedder == nil {
		return nil, errors.New("sqlite knowledge store: embedder is nil")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", dsn)
	}
	s := &SQLiteStore{db: db, embedder: embedder, chunkSize: chunkSize}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(sqliteKnowledgeSchemaV1); err != nil {
		return errors.Wrap(err, "could not create knowledge schema")
	}
	return nil
}

func (s *SQLiteStore) Add(ctx context.Context, text string, metadata Metadata) ([]string, error) {
	chunks := ChunkText(text, s.chunkSize)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal metadata")
	}

	type row struct {
		id        string
		text      string
		embedding []byte
	}
	rows := make([]row, 0, len(chunks))
	for _, c := range chunks {
		v, err := s.embedder.Embed(ctx, c)
		if err != nil {
			return nil, errors.Wrap(err, "could not embed chunk")
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "could not marshal embedding")
		}
		rows = append(rows, row{id: uuid.NewString(), text: c, embedding: b})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("sqlite knowledge store closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UnixMilli()
	model := s.embedder.Model().Name
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_chunks (id, text, metadata_json, embedding_json, model, created_at_ms) VALUES (?, ?, ?, ?, ?, ?)`,
			r.id, r.text, string(meta), string(r.embedding), model, now)
		if err != nil {
			return nil, errors.Wrap(err, "could not insert chunk")
		}
		ids = append(ids, r.id)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "could not commit chunks")
	}

	log.Debug().Int("chunks", len(ids)).Msg("stored knowledge chunks")
	return ids, nil
}

func (s *SQLiteStore) Query(ctx context.Context, text string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	query, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "could not embed query")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("sqlite knowledge store closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata_json, embedding_json FROM knowledge_chunks WHERE model = ?`,
		s.embedder.Model().Name)
	if err != nil {
		return nil, errors.Wrap(err, "could not query chunks")
	}
	defer func() {
		_ = rows.Close()
	}()

	ret := []Snippet{}
	for rows.Next() {
		var id, chunk, meta, embedding string
		if err := rows.Scan(&id, &chunk, &meta, &embedding); err != nil {
			return nil, errors.Wrap(err, "could not scan chunk")
		}
		var v []float32
		if err := json.Unmarshal([]byte(embedding), &v); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("skipping chunk with unreadable embedding")
			continue
		}
		md := Metadata{}
		_ = json.Unmarshal([]byte(meta), &md)
		ret = append(ret, Snippet{ID: id, Text: chunk, Score: cosine(query, v), Metadata: md})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "could not iterate chunks")
	}

	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Score > ret[j].Score
	})
	if len(ret) > limit {
		ret = ret[:limit]
	}
	return ret, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
