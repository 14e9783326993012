package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezetheking/tube-snatch/internal/config"
	"github.com/ezetheking/tube-snatch/internal/fetch"
	"github.com/ezetheking/tube-snatch/internal/progress"
	"github.com/ezetheking/tube-snatch/internal/storage/memory"
	"github.com/ezetheking/tube-snatch/internal/tube"
)

type fakeFetcher struct {
	result  tube.FetchResult
	err     error
	locator string
	cat     tube.Category
}

func (f *fakeFetcher) FetchChannel(_ context.Context, locator string, category tube.Category) (tube.FetchResult, error) {
	f.locator = locator
	f.cat = category
	return f.result, f.err
}

type fakeStarter struct {
	ids  []string
	hint string
}

func (f *fakeStarter) Start(videoIDs []string, qualityHint string) int {
	f.ids = videoIDs
	f.hint = qualityHint
	return len(videoIDs)
}

type fakeDownloader struct {
	path string
	err  error
	req  tube.DownloadRequest
}

func (d *fakeDownloader) Download(_ context.Context, req tube.DownloadRequest) (string, error) {
	d.req = req
	return d.path, d.err
}

// diskMedia is a minimal MediaFiles over a temp dir.
type diskMedia struct {
	dir string
}

func (m *diskMedia) TempTemplate(tempID string) string {
	return filepath.Join(m.dir, "temp_"+tempID+".%(ext)s")
}

func (m *diskMedia) LocateTemp(tempID string) (string, bool) {
	return m.locate("temp_" + tempID)
}

func (m *diskMedia) Locate(videoID string) (string, bool) {
	return m.locate(videoID + "_")
}

func (m *diskMedia) Resolve(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	path := filepath.Join(m.dir, filepath.Base(name))
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func (m *diskMedia) Remove(path string) error {
	return os.Remove(path)
}

func (m *diskMedia) locate(prefix string) (string, bool) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			return filepath.Join(m.dir, e.Name()), true
		}
	}
	return "", false
}

type fakeIDGen struct{ id string }

func (g *fakeIDGen) NewID() (string, error) { return g.id, nil }

type serverFixture struct {
	server     *Server
	fetcher    *fakeFetcher
	videos     *memory.VideoStore
	starter    *fakeStarter
	progress   *progress.Store
	media      *diskMedia
	downloader *fakeDownloader
}

func newFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		fetcher:    &fakeFetcher{},
		videos:     memory.NewVideoStore(),
		starter:    &fakeStarter{},
		progress:   progress.NewStore(),
		media:      &diskMedia{dir: t.TempDir()},
		downloader: &fakeDownloader{},
	}
	cfg := config.Config{}
	cfg.Server.RequestTimeoutSeconds = 10
	cfg.Download.QualityCeiling = 1080
	cfg.Download.MergeFormat = "mp4"
	f.server = NewServer(
		f.fetcher,
		f.videos,
		f.starter,
		f.progress,
		f.media,
		f.downloader,
		&fakeIDGen{id: "tmpid"},
		cfg,
		zap.NewNop(),
	)
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestTestEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/test", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "Backend is working!", body["message"])
	require.Equal(t, "success", body["status"])
}

func TestFetchChannelPersistsAndResponds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.result = tube.FetchResult{
		ChannelName: "My Channel",
		ChannelID:   "UC1",
		Entries: []tube.Entry{
			{VideoID: "abc", Title: "First", ChannelID: "UC1", ChannelName: "My Channel"},
			{VideoID: "def", Title: "Second", ChannelID: "UC1", ChannelName: "My Channel"},
		},
	}

	rec := f.do(t, http.MethodPost, "/api/fetch-channel",
		`{"channel_url": "https://yt.example/@chan", "content_type": "shorts"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://yt.example/@chan", f.fetcher.locator)
	require.Equal(t, tube.CategoryShorts, f.fetcher.cat)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "My Channel", body["channel_name"])
	require.Equal(t, float64(2), body["video_count"])

	rows, err := f.videos.ListVideos(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "abc", rows[0].VideoID)
}

func TestFetchChannelValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/fetch-channel", `{"channel_url": ""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Channel URL is required", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/api/fetch-channel", `{"channel_url": "x", "content_type": "playlists"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/fetch-channel", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchChannelErrorIsRewrittenFriendly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.err = errors.New("yt-dlp: could not find match for patterns")

	rec := f.do(t, http.MethodPost, "/api/fetch-channel", `{"channel_url": "https://yt.example/@chan"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t,
		"Could not access this channel. Try using a different channel URL format or a different channel.",
		decodeBody(t, rec)["error"],
	)
}

func TestFetchChannelNoEntries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.err = fetch.ErrNoEntries

	rec := f.do(t, http.MethodPost, "/api/fetch-channel", `{"channel_url": "https://yt.example/@chan"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListVideosAlwaysReturnsArray(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/videos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"videos": []}`, rec.Body.String())
}

func TestDownloadEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/download", `{"video_ids": ["a", "b"], "resolution": "720"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"a", "b"}, f.starter.ids)
	require.Equal(t, "720", f.starter.hint)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Downloads started", body["message"])

	rec = f.do(t, http.MethodPost, "/api/download", `{"video_ids": []}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No video IDs provided", decodeBody(t, rec)["error"])
}

func TestProgressAndClear(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.progress.Set("abc", tube.ProgressRecord{Status: tube.ProgressDownloading, Progress: 42})

	rec := f.do(t, http.MethodGet, "/api/download-progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"abc": {"status": "downloading", "progress": 42}}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/clear-downloads", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/download-progress", "")
	require.JSONEq(t, `{}`, rec.Body.String())
}

func TestStreamDownload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.videos.ReplaceChannelVideos(context.Background(), "UC1", []tube.StoredVideo{
		{VideoID: "abc", Title: "A: Title?", ChannelID: "UC1"},
	}))
	temp := filepath.Join(f.media.dir, "temp_tmpid.mp4")
	require.NoError(t, os.WriteFile(temp, []byte("media-bytes"), 0o600))
	f.downloader.path = temp

	rec := f.do(t, http.MethodGet, "/api/stream-download/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "media-bytes", rec.Body.String())
	require.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), `A_ Title_.mp4`)
	require.Equal(t, "https://www.youtube.com/watch?v=abc", f.downloader.req.URL)
	require.Equal(t, 1080, f.downloader.req.QualityCeiling)
}

func TestStreamDownloadUnknownVideo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/stream-download/ghost", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Video not found", decodeBody(t, rec)["error"])
}

func TestStreamDownloadFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.videos.ReplaceChannelVideos(context.Background(), "UC1", []tube.StoredVideo{
		{VideoID: "abc", Title: "T", ChannelID: "UC1"},
	}))
	f.downloader.err = errors.New("network gone")

	rec := f.do(t, http.MethodGet, "/api/stream-download/abc", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, decodeBody(t, rec)["error"], "Download failed")
}

func TestDownloadFileServesCachedCopy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.videos.ReplaceChannelVideos(context.Background(), "UC1", []tube.StoredVideo{
		{VideoID: "abc", Title: "Cached", ChannelID: "UC1"},
	}))
	require.NoError(t, f.videos.MarkDownloaded(context.Background(), "abc", "abc_Cached.mp4"))
	require.NoError(t, os.WriteFile(filepath.Join(f.media.dir, "abc_Cached.mp4"), []byte("cached-bytes"), 0o600))

	rec := f.do(t, http.MethodGet, "/api/download-file/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cached-bytes", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Disposition"), "Cached.mp4")
}

func TestDownloadFileRedirectsWhenNotOnDisk(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.videos.ReplaceChannelVideos(context.Background(), "UC1", []tube.StoredVideo{
		{VideoID: "abc", Title: "T", ChannelID: "UC1"},
	}))

	// Not downloaded yet.
	rec := f.do(t, http.MethodGet, "/api/download-file/abc", "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/api/stream-download/abc", rec.Header().Get("Location"))

	// Marked downloaded but the file vanished.
	require.NoError(t, f.videos.MarkDownloaded(context.Background(), "abc", "abc_gone.mp4"))
	rec = f.do(t, http.MethodGet, "/api/download-file/abc", "")
	require.Equal(t, http.StatusFound, rec.Code)

	// Unknown id redirects too; the stream endpoint reports the miss.
	rec = f.do(t, http.MethodGet, "/api/download-file/ghost", "")
	require.Equal(t, http.StatusFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "").Code)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/test", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
