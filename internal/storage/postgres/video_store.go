// Package postgres provides the Postgres-backed video record store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ezetheking/tube-snatch/internal/tube"
)

// VideoStoreConfig controls the Postgres connection pool.
type VideoStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// VideoStore implements tube.VideoStore on Postgres.
type VideoStore struct {
	pool dbConn
}

// NewVideoStore connects a pool using the provided config.
func NewVideoStore(ctx context.Context, cfg VideoStoreConfig) (*VideoStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &VideoStore{pool: pool}, nil
}

// NewVideoStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewVideoStoreWithPool(pool dbConn) (*VideoStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &VideoStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *VideoStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the videos table if it does not exist.
func (s *VideoStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS videos (
	id BIGSERIAL PRIMARY KEY,
	video_id TEXT UNIQUE NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT NOT NULL DEFAULT '',
	duration TEXT NOT NULL DEFAULT '',
	resolutions TEXT NOT NULL DEFAULT '',
	channel_id TEXT NOT NULL DEFAULT '',
	channel_name TEXT NOT NULL DEFAULT '',
	downloaded BOOLEAN NOT NULL DEFAULT FALSE,
	download_progress INTEGER NOT NULL DEFAULT 0,
	file_path TEXT NOT NULL DEFAULT ''
)`)
	if err != nil {
		return fmt.Errorf("ensure videos schema: %w", err)
	}
	return nil
}

// ReplaceChannelVideos deletes the channel's rows and inserts the new set in
// one transaction. Video-id collisions with other channels are ignored.
func (s *VideoStore) ReplaceChannelVideos(ctx context.Context, channelID string, videos []tube.StoredVideo) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM videos WHERE channel_id = $1`, channelID); err != nil {
		return fmt.Errorf("clear channel videos: %w", err)
	}
	for _, v := range videos {
		_, err := tx.Exec(ctx, `
INSERT INTO videos (video_id, title, thumbnail_url, duration, resolutions, channel_id, channel_name)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (video_id) DO NOTHING`,
			v.VideoID,
			v.Title,
			v.ThumbnailURL,
			v.Duration,
			strings.Join(v.Resolutions, ","),
			v.ChannelID,
			v.ChannelName,
		)
		if err != nil {
			return fmt.Errorf("insert video %s: %w", v.VideoID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

const videoColumns = `id, video_id, title, thumbnail_url, duration, resolutions, channel_id, channel_name, downloaded, download_progress, file_path`

// ListVideos returns all rows ordered by insertion id.
func (s *VideoStore) ListVideos(ctx context.Context) ([]tube.StoredVideo, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []tube.StoredVideo
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}

// GetVideo fetches one row by video id.
func (s *VideoStore) GetVideo(ctx context.Context, videoID string) (tube.StoredVideo, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = $1`, videoID)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tube.StoredVideo{}, tube.ErrVideoNotFound
		}
		return tube.StoredVideo{}, err
	}
	return v, nil
}

// MarkDownloaded flags a row as downloaded and records its file location.
func (s *VideoStore) MarkDownloaded(ctx context.Context, videoID string, filePath string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE videos
SET downloaded = TRUE, download_progress = 100, file_path = COALESCE(NULLIF($2, ''), file_path)
WHERE video_id = $1`,
		videoID, filePath)
	if err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tube.ErrVideoNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (tube.StoredVideo, error) {
	var (
		v           tube.StoredVideo
		resolutions string
	)
	err := row.Scan(
		&v.ID,
		&v.VideoID,
		&v.Title,
		&v.ThumbnailURL,
		&v.Duration,
		&resolutions,
		&v.ChannelID,
		&v.ChannelName,
		&v.Downloaded,
		&v.DownloadProgress,
		&v.FilePath,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tube.StoredVideo{}, err
		}
		return tube.StoredVideo{}, fmt.Errorf("scan video row: %w", err)
	}
	if resolutions != "" {
		v.Resolutions = strings.Split(resolutions, ",")
	}
	return v, nil
}
