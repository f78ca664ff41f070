package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/bdougie/framesort/internal/embeddings"
	"github.com/bdougie/framesort/internal/models"
)

// Postgres is a connection to the frame mirror database.
type Postgres struct {
	pool     *pgxpool.Pool
	embedder *embeddings.Service
}

// OpenPostgres creates the schema if needed and connects a pool whose
// connections understand the vector type.
func OpenPostgres(ctx context.Context, databaseURL string, embedder *embeddings.Service) (*Postgres, error) {
	if err := InitSchema(ctx, databaseURL); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool, embedder: embedder}, nil
}

// Close closes the database connection
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// PostgresStorage mirrors the frame records of one run into Postgres.
type PostgresStorage struct {
	db      *Postgres
	videoID int
	runID   uuid.UUID
}

// ForRun registers a new run of the given video and returns its storage.
func (p *Postgres) ForRun(ctx context.Context, videoName, objectName string) (*PostgresStorage, error) {
	videoID, err := p.getOrCreateVideo(ctx, videoName)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	_, err = p.pool.Exec(ctx,
		"INSERT INTO runs (id, video_id, object_name, started_at) VALUES ($1, $2, $3, $4)",
		runID, videoID, objectName, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to create run entry: %w", err)
	}

	return &PostgresStorage{db: p, videoID: videoID, runID: runID}, nil
}

// RunID identifies the run in the runs table.
func (s *PostgresStorage) RunID() uuid.UUID {
	return s.runID
}

// getOrCreateVideo gets an existing video entry or creates a new one
func (p *Postgres) getOrCreateVideo(ctx context.Context, videoName string) (int, error) {
	var id int
	err := p.pool.QueryRow(ctx,
		"SELECT id FROM videos WHERE name = $1",
		videoName).Scan(&id)

	if err == nil {
		return id, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("error checking for existing video: %w", err)
	}

	err = p.pool.QueryRow(ctx,
		`INSERT INTO videos (name, created_at) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		videoName, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create video entry: %w", err)
	}

	return id, nil
}

// AddResult upserts the frame and its tag embedding.
func (s *PostgresStorage) AddResult(ctx context.Context, result models.FrameRecord) error {
	embedding := s.db.embedder.Embed(result.Tags + " " + result.Text)

	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO frames
		(video_id, run_id, frame_number, frame_path, tags, caption, confidence, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (video_id, frame_number) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			frame_path = EXCLUDED.frame_path,
			tags = EXCLUDED.tags,
			caption = EXCLUDED.caption,
			confidence = EXCLUDED.confidence,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at`,
		s.videoID, s.runID, result.Frame, result.ImagePath, result.Tags, result.Text,
		result.Confidence, pgvector.NewVector(embedding), time.Now())
	if err != nil {
		return fmt.Errorf("failed to store frame %d: %w", result.Frame, err)
	}
	return nil
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// SearchSimilarFrames finds the frames whose tags and caption are closest to
// query. An empty videoName searches every video.
func (p *Postgres) SearchSimilarFrames(ctx context.Context, query, videoName string, limit int) ([]models.FrameSearchResult, error) {
	queryEmbedding := p.embedder.Embed(query)

	rows, err := p.pool.Query(ctx,
		`SELECT v.name, f.frame_number, f.frame_path, f.tags, f.caption,
		1 - (f.embedding <=> $1) AS similarity
		FROM frames f
		JOIN videos v ON f.video_id = v.id
		WHERE $2::text = '' OR v.name = $2::text
		ORDER BY f.embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(queryEmbedding), videoName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar frames: %w", err)
	}
	defer rows.Close()

	var results []models.FrameSearchResult
	for rows.Next() {
		var result models.FrameSearchResult
		if err := rows.Scan(&result.Video, &result.FrameNumber, &result.FramePath,
			&result.Tags, &result.Description, &result.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// InitSchema creates the vector extension and tables if they don't exist.
func InitSchema(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS videos (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(name)
		);

		CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
			object_name TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS frames (
			id SERIAL PRIMARY KEY,
			video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
			run_id UUID REFERENCES runs(id) ON DELETE SET NULL,
			frame_number INTEGER NOT NULL,
			frame_path TEXT NOT NULL,
			tags TEXT NOT NULL,
			caption TEXT NOT NULL,
			confidence DOUBLE PRECISION,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(video_id, frame_number)
		);
	`, embeddings.Dimensions))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_frames_video_id ON frames(video_id);
		CREATE INDEX IF NOT EXISTS idx_frames_embedding ON frames USING hnsw (embedding vector_cosine_ops);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
