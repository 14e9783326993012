// Package tube defines core types shared across subsystems.
package tube

import (
	"fmt"
	"time"
)

// Category selects which content listing of a channel to fetch.
type Category string

// Supported content categories.
const (
	CategoryVideos  Category = "videos"
	CategoryShorts  Category = "shorts"
	CategoryStreams Category = "streams"
)

// ParseCategory validates a client-supplied category string. An empty string
// defaults to videos, matching the API's historical behavior.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryVideos, CategoryShorts, CategoryStreams:
		return Category(s), nil
	case "":
		return CategoryVideos, nil
	default:
		return "", fmt.Errorf("unknown content type %q", s)
	}
}

// ThumbnailURLTemplate is the fixed template thumbnails are derived from.
// Thumbnails are never requested from upstream; they are a pure function of
// the video id.
const ThumbnailURLTemplate = "https://img.youtube.com/vi/%s/hqdefault.jpg"

// ThumbnailURL derives the thumbnail locator for a video id.
func ThumbnailURL(videoID string) string {
	return fmt.Sprintf(ThumbnailURLTemplate, videoID)
}

// WatchURL resolves a video id to its canonical remote address.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// Entry is one discovered content item in a fetch result.
type Entry struct {
	VideoID      string   `json:"video_id"`
	Title        string   `json:"title"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Duration     string   `json:"duration"`
	Resolutions  []string `json:"resolutions"`
	ChannelID    string   `json:"channel_id"`
	ChannelName  string   `json:"channel_name"`
}

// FetchResult is the aggregated outcome of one channel fetch. Entries keep
// discovery order and carry unique video ids.
type FetchResult struct {
	ChannelName string  `json:"channel_name"`
	ChannelID   string  `json:"channel_id"`
	Entries     []Entry `json:"videos"`
}

// RawEntry is a single listing row as returned by an extraction attempt.
// Every field except ID may be empty; callers substitute placeholders.
type RawEntry struct {
	ID       string
	Title    string
	Duration string
}

// EntryBatch is the raw result of one extraction attempt against one locator.
type EntryBatch struct {
	ChannelTitle string
	ChannelID    string
	Entries      []RawEntry
}

// ClientProfile identifies the upstream request shape used by a strategy.
type ClientProfile struct {
	UserAgent     string
	PlayerClients []string
	PlayerSkip    []string
	// ForceTab requests the category tab explicitly instead of relying on
	// the locator suffix.
	ForceTab bool
}

// StrategyConfig is one named (profile, timeout, cap) extraction
// configuration. Catalog order is a priority, not a random selection.
type StrategyConfig struct {
	Name       string
	Profile    ClientProfile
	Timeout    time.Duration
	MaxEntries int
}

// ProgressStatus is the lifecycle state of a download's progress record.
type ProgressStatus string

// Progress states written by download tasks.
const (
	ProgressDownloading ProgressStatus = "downloading"
	ProgressCompleted   ProgressStatus = "completed"
	ProgressError       ProgressStatus = "error"
)

// ProgressRecord is the small per-video status snapshot polled by clients.
// Absence of a record means the download never started or was cleared.
type ProgressRecord struct {
	Status   ProgressStatus `json:"status"`
	Progress int            `json:"progress"`
	FilePath string         `json:"file_path,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// StoredVideo is a video row in the record store.
type StoredVideo struct {
	ID               int64    `json:"id"`
	VideoID          string   `json:"video_id"`
	Title            string   `json:"title"`
	ThumbnailURL     string   `json:"thumbnail_url"`
	Duration         string   `json:"duration"`
	Resolutions      []string `json:"resolutions"`
	ChannelID        string   `json:"channel_id"`
	ChannelName      string   `json:"channel_name"`
	Downloaded       bool     `json:"downloaded"`
	DownloadProgress int      `json:"download_progress"`
	FilePath         string   `json:"file_path"`
}
