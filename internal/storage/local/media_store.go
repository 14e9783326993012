// Package local implements the filesystem media store for downloaded files.
package local

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local media store.
type Config struct {
	// BaseDir is the directory downloaded media lands in.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// MediaStore resolves downloaded files on the local filesystem. Download
// outputs follow the "<video_id>_<title>.<ext>" naming scheme, so files can
// be located by id prefix even when no path was recorded.
type MediaStore struct {
	baseDir string
}

// New creates a MediaStore, ensuring the directory exists and is writable.
func New(cfg Config) (*MediaStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &MediaStore{baseDir: cfg.BaseDir}, nil
}

// Dir returns the media directory.
func (s *MediaStore) Dir() string {
	return s.baseDir
}

// OutputTemplate returns the yt-dlp output template for a video id.
func (s *MediaStore) OutputTemplate(videoID string) string {
	return filepath.Join(s.baseDir, videoID+"_%(title)s.%(ext)s")
}

// TempTemplate returns the output template for a temporary stream artifact.
func (s *MediaStore) TempTemplate(tempID string) string {
	return filepath.Join(s.baseDir, "temp_"+tempID+".%(ext)s")
}

// Locate scans for a file belonging to the video id by filename prefix.
func (s *MediaStore) Locate(videoID string) (string, bool) {
	return s.locateByPrefix(videoID + "_")
}

// LocateTemp scans for a temporary stream artifact by its temp id.
func (s *MediaStore) LocateTemp(tempID string) (string, bool) {
	return s.locateByPrefix("temp_" + tempID)
}

// Resolve joins a recorded file name onto the media directory and reports
// whether it exists.
func (s *MediaStore) Resolve(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	path := filepath.Join(s.baseDir, filepath.Base(name))
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Remove deletes a file inside the media directory.
func (s *MediaStore) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

func (s *MediaStore) locateByPrefix(prefix string) (string, bool) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			return filepath.Join(s.baseDir, entry.Name()), true
		}
	}
	return "", false
}

// unsafeFilenameChars are replaced when deriving attachment filenames from
// video titles.
const unsafeFilenameChars = `/\:?*<>|`

// SanitizeFilename derives a browser-safe attachment filename from a title.
// The title is truncated to 50 characters before substitution.
func SanitizeFilename(title, ext string) string {
	if len(title) > 50 {
		title = title[:50]
	}
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeFilenameChars, r) {
			return '_'
		}
		return r
	}, title)
	if cleaned == "" {
		cleaned = "video"
	}
	if ext == "" {
		ext = "mp4"
	}
	return cleaned + "." + ext
}
