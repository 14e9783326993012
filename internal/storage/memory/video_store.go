// Package memory provides an in-memory video store for development/testing.
package memory

import (
	"context"
	"sync"

	"github.com/ezetheking/tube-snatch/internal/tube"
)

// VideoStore implements tube.VideoStore with a mutex-guarded map plus an
// insertion-order index.
type VideoStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[string]tube.StoredVideo
	order  []string
}

// NewVideoStore constructs a VideoStore.
func NewVideoStore() *VideoStore {
	return &VideoStore{
		nextID: 1,
		byID:   make(map[string]tube.StoredVideo),
	}
}

// ReplaceChannelVideos drops every row for the channel and inserts the new
// set. Rows that collide with an existing video id are ignored, matching the
// record store's insert-or-ignore contract.
func (s *VideoStore) ReplaceChannelVideos(_ context.Context, channelID string, videos []tube.StoredVideo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		if s.byID[id].ChannelID == channelID {
			delete(s.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	for _, v := range videos {
		if _, exists := s.byID[v.VideoID]; exists {
			continue
		}
		v.ID = s.nextID
		s.nextID++
		s.byID[v.VideoID] = v
		s.order = append(s.order, v.VideoID)
	}
	return nil
}

// ListVideos returns all rows in insertion order.
func (s *VideoStore) ListVideos(_ context.Context) ([]tube.StoredVideo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tube.StoredVideo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out, nil
}

// GetVideo fetches a row by video id.
func (s *VideoStore) GetVideo(_ context.Context, videoID string) (tube.StoredVideo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[videoID]
	if !ok {
		return tube.StoredVideo{}, tube.ErrVideoNotFound
	}
	return v, nil
}

// MarkDownloaded flags a row as downloaded and records its file location.
func (s *VideoStore) MarkDownloaded(_ context.Context, videoID string, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[videoID]
	if !ok {
		return tube.ErrVideoNotFound
	}
	v.Downloaded = true
	v.DownloadProgress = 100
	if filePath != "" {
		v.FilePath = filePath
	}
	s.byID[videoID] = v
	return nil
}
