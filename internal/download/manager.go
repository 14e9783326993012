// Package download runs background download tasks and tracks their state.
package download

import (
	"context"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/ezetheking/tube-snatch/internal/telemetry"
	"github.com/ezetheking/tube-snatch/internal/tube"
)

// Config controls Manager behavior.
type Config struct {
	// QualityCeiling caps the vertical resolution of downloaded streams.
	QualityCeiling int
	// MergeFormat is the container both streams are merged into.
	MergeFormat string
}

// Manager launches one independent task per requested video id and guarantees
// at most one active task per id. Tasks run concurrently with each other and
// with any in-flight channel fetch, sharing only the progress and record
// stores. There is no cancellation path once a task starts and no automatic
// retry on failure.
type Manager struct {
	downloader tube.Downloader
	videos     tube.VideoStore
	progress   tube.ProgressStore
	media      tube.MediaStore
	clock      tube.Clock
	cfg        Config
	logger     *zap.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// New constructs a Manager.
func New(
	downloader tube.Downloader,
	videos tube.VideoStore,
	progress tube.ProgressStore,
	media tube.MediaStore,
	clock tube.Clock,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QualityCeiling <= 0 {
		cfg.QualityCeiling = 1080
	}
	if cfg.MergeFormat == "" {
		cfg.MergeFormat = "mp4"
	}
	return &Manager{
		downloader: downloader,
		videos:     videos,
		progress:   progress,
		media:      media,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
		active:     make(map[string]struct{}),
	}
}

// Start spawns a task for each id that has no active task and returns the
// number of tasks it launched. A second call for an id while its first task
// is still running is a no-op for that id. The quality hint is accepted for
// API compatibility; the ceiling policy is fixed.
func (m *Manager) Start(videoIDs []string, qualityHint string) int {
	started := 0
	for _, id := range videoIDs {
		if id == "" {
			continue
		}
		m.mu.Lock()
		if _, running := m.active[id]; running {
			m.mu.Unlock()
			m.logger.Debug("download already active, skipping", zap.String("video_id", id))
			continue
		}
		m.active[id] = struct{}{}
		m.mu.Unlock()

		started++
		m.logger.Info("download task starting",
			zap.String("video_id", id),
			zap.String("quality_hint", qualityHint),
		)
		go m.run(id)
	}
	return started
}

// ActiveCount reports how many tasks are currently running.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) run(videoID string) {
	defer func() {
		m.mu.Lock()
		delete(m.active, videoID)
		m.mu.Unlock()
	}()
	telemetry.DownloadStarted()
	defer telemetry.DownloadFinished()

	// Tasks outlive the request that accepted them.
	ctx := context.Background()
	started := m.clock.Now()

	video, err := m.videos.GetVideo(ctx, videoID)
	if err != nil {
		m.progress.Set(videoID, tube.ProgressRecord{
			Status:  tube.ProgressError,
			Message: "Video not found",
		})
		telemetry.ObserveDownload("error")
		m.logger.Error("download target missing from record store",
			zap.String("video_id", videoID),
			zap.Error(err),
		)
		return
	}

	m.progress.Set(videoID, tube.ProgressRecord{Status: tube.ProgressDownloading, Progress: 0})

	path, err := m.downloader.Download(ctx, tube.DownloadRequest{
		URL:            tube.WatchURL(videoID),
		QualityCeiling: m.cfg.QualityCeiling,
		MergeFormat:    m.cfg.MergeFormat,
		OutputTemplate: m.media.OutputTemplate(videoID),
		OnProgress: func(percent int) {
			m.progress.Set(videoID, tube.ProgressRecord{
				Status:   tube.ProgressDownloading,
				Progress: percent,
			})
		},
	})
	if err != nil {
		m.progress.Set(videoID, tube.ProgressRecord{
			Status:  tube.ProgressError,
			Message: err.Error(),
		})
		telemetry.ObserveDownload("error")
		m.logger.Error("download task failed",
			zap.String("video_id", videoID),
			zap.Error(err),
		)
		return
	}

	if path == "" {
		if found, ok := m.media.Locate(videoID); ok {
			path = found
		}
	}

	fileName := filepath.Base(path)
	if path == "" {
		fileName = ""
	}
	if err := m.videos.MarkDownloaded(ctx, videoID, fileName); err != nil {
		m.logger.Error("record store update failed after download",
			zap.String("video_id", videoID),
			zap.Error(err),
		)
	}

	m.progress.Set(videoID, tube.ProgressRecord{
		Status:   tube.ProgressCompleted,
		Progress: 100,
		FilePath: path,
	})
	telemetry.ObserveDownload("completed")
	m.logger.Info("download task finished",
		zap.String("video_id", videoID),
		zap.String("title", video.Title),
		zap.String("file", fileName),
		zap.Duration("took", m.clock.Now().Sub(started)),
	)
}
