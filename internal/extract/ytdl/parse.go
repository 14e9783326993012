package ytdl

import (
	"encoding/json"
	"fmt"

	"github.com/ezetheking/tube-snatch/internal/tube"
)

// listing mirrors the subset of the yt-dlp info dict the service consumes.
// Flat extraction leaves most fields null, so everything is optional.
type listing struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Entries []listingEntry `json:"entries"`
}

type listingEntry struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	DurationString string `json:"duration_string"`
}

// parseListing decodes a -J dump into an EntryBatch. Entries without an id
// are dropped; field placeholders are the orchestrator's concern.
func parseListing(data []byte) (tube.EntryBatch, error) {
	var l listing
	if err := json.Unmarshal(data, &l); err != nil {
		return tube.EntryBatch{}, fmt.Errorf("decode info dump: %w", err)
	}
	batch := tube.EntryBatch{
		ChannelTitle: l.Title,
		ChannelID:    l.ID,
	}
	for _, e := range l.Entries {
		if e.ID == "" {
			continue
		}
		batch.Entries = append(batch.Entries, tube.RawEntry{
			ID:       e.ID,
			Title:    e.Title,
			Duration: e.DurationString,
		})
	}
	return batch, nil
}
