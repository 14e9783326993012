// Package ytdl implements the extraction capability on top of the yt-dlp
// process wrapper.
package ytdl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	"github.com/ezetheking/tube-snatch/internal/tube"
)

const progressInterval = 500 * time.Millisecond

// Client wraps yt-dlp invocations. It is stateless; every call builds a fresh
// command.
type Client struct {
	logger *zap.Logger
}

// New constructs a Client.
func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{logger: logger}
}

// Install resolves or downloads the yt-dlp binary so later invocations find
// it on PATH. Best-effort; a system-installed binary also works.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

// Extract runs a flat-playlist listing of the locator and parses the dumped
// JSON into an EntryBatch. Failures surface as a single opaque error.
func (c *Client) Extract(ctx context.Context, locator string, profile tube.ClientProfile, maxEntries int) (tube.EntryBatch, error) {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		FlatPlaylist().
		DumpSingleJSON()
	if maxEntries > 0 {
		cmd = cmd.PlaylistEnd(maxEntries)
	}
	if profile.UserAgent != "" {
		cmd = cmd.UserAgent(profile.UserAgent)
	}
	if args := extractorArgs(profile); args != "" {
		cmd = cmd.ExtractorArgs(args)
	}

	res, err := cmd.Run(ctx, locator)
	if err != nil {
		return tube.EntryBatch{}, fmt.Errorf("yt-dlp listing for %s: %w", locator, err)
	}
	batch, err := parseListing([]byte(res.Stdout))
	if err != nil {
		return tube.EntryBatch{}, fmt.Errorf("parse listing for %s: %w", locator, err)
	}
	c.logger.Debug("listing extracted",
		zap.String("locator", locator),
		zap.Int("entries", len(batch.Entries)),
	)
	return batch, nil
}

// Download fetches the media for one video, merging the best video+audio pair
// under the quality ceiling into a single container, and forwards progress
// ticks. Returns the final file path yt-dlp reports, or "" when it does not.
func (c *Client) Download(ctx context.Context, req tube.DownloadRequest) (string, error) {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		Format(formatSelector(req.QualityCeiling, req.MergeFormat)).
		Output(req.OutputTemplate).
		UserAgent(desktopUserAgent).
		ExtractorArgs("youtube:player_client=android,web;player_skip=configs,webpage").
		Retries("5").
		FragmentRetries("5").
		SkipUnavailableFragments()
	if req.MergeFormat != "" {
		cmd = cmd.MergeOutputFormat(req.MergeFormat)
	}
	if req.OnProgress != nil {
		cmd = cmd.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			if update.TotalBytes <= 0 {
				return
			}
			percent := int(float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100)
			if percent < 0 {
				percent = 0
			}
			if percent > 100 {
				percent = 100
			}
			req.OnProgress(percent)
		})
	}

	res, err := cmd.Run(ctx, req.URL)
	if err != nil {
		return "", fmt.Errorf("yt-dlp download for %s: %w", req.URL, err)
	}
	return downloadedPath(res), nil
}

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// extractorArgs renders a ClientProfile into yt-dlp extractor-args syntax,
// e.g. "youtube:player_client=web,android;player_skip=configs".
func extractorArgs(profile tube.ClientProfile) string {
	var parts []string
	if len(profile.PlayerClients) > 0 {
		parts = append(parts, "player_client="+strings.Join(profile.PlayerClients, ","))
	}
	if len(profile.PlayerSkip) > 0 {
		parts = append(parts, "player_skip="+strings.Join(profile.PlayerSkip, ","))
	}
	if len(parts) == 0 {
		return ""
	}
	return "youtube:" + strings.Join(parts, ";")
}

// formatSelector builds the quality-ceiling format expression. The selector
// prefers a DASH video+audio pair under the ceiling and falls back to
// progressive streams.
func formatSelector(ceiling int, mergeFormat string) string {
	if ceiling <= 0 {
		ceiling = 1080
	}
	ext := mergeFormat
	if ext == "" {
		ext = "mp4"
	}
	return fmt.Sprintf(
		"bestvideo[height<=%d][ext=%s]+bestaudio[ext=m4a]/best[height<=%d][ext=%s]/best[height<=%d]",
		ceiling, ext, ceiling, ext, ceiling,
	)
}

func downloadedPath(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return ""
	}
	for _, info := range infos {
		if info == nil || info.Filename == nil {
			continue
		}
		if *info.Filename != "" {
			return *info.Filename
		}
	}
	return ""
}
