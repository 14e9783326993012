package tube

import (
	"context"
	"errors"
	"time"
)

// ErrVideoNotFound is returned by record stores for unknown video ids.
var ErrVideoNotFound = errors.New("video not found")

// Extractor wraps the upstream content-extraction capability. Given a locator
// and a client profile it returns the raw listing or a single opaque error.
// Implementations must not retain state between calls.
type Extractor interface {
	Extract(ctx context.Context, locator string, profile ClientProfile, maxEntries int) (EntryBatch, error)
}

// DownloadRequest captures everything needed to download one video.
type DownloadRequest struct {
	URL string
	// QualityCeiling caps the vertical resolution of the selected streams.
	QualityCeiling int
	MergeFormat    string
	OutputTemplate string
	// OnProgress receives best-effort percent ticks in [0,100].
	OnProgress func(percent int)
}

// Downloader fetches media for a single video, reporting progress through the
// request callback. It returns the final file path when the upstream tool
// reports one; an empty path means the caller must locate the file itself.
type Downloader interface {
	Download(ctx context.Context, req DownloadRequest) (string, error)
}

// VideoStore persists video rows keyed by video id.
type VideoStore interface {
	ReplaceChannelVideos(ctx context.Context, channelID string, videos []StoredVideo) error
	ListVideos(ctx context.Context) ([]StoredVideo, error)
	GetVideo(ctx context.Context, videoID string) (StoredVideo, error)
	MarkDownloaded(ctx context.Context, videoID string, filePath string) error
}

// ProgressStore holds per-video download progress for polling clients.
// Writers replace whole records per key; there is no cross-key consistency.
type ProgressStore interface {
	Get(videoID string) (ProgressRecord, bool)
	Snapshot() map[string]ProgressRecord
	Set(videoID string, rec ProgressRecord)
	Clear()
}

// MediaStore resolves downloaded media files on disk.
type MediaStore interface {
	Dir() string
	OutputTemplate(videoID string) string
	Locate(videoID string) (string, bool)
	Resolve(name string) (string, bool)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque ids for temp artifacts.
type IDGenerator interface {
	NewID() (string, error)
}
