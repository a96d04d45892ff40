package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"mediavault/logger"
)

const (
	defaultYtDlpPath    = "yt-dlp"
	defaultYtDlpTimeout = 30 * time.Second

	// streamURLLifetime is how long an extracted URL is treated as valid.
	// Google signs stream URLs for roughly six hours.
	streamURLLifetime = 6 * time.Hour

	// progressiveItag is format 18: combined audio+video mp4 at 360p, the
	// one progressive format present on effectively every video.
	progressiveItag = "18"
)

// ExtractionError means yt-dlp ran but could not produce a usable stream
// URL for the video. Callers are expected to fall back to on-device
// extraction rather than retry.
type ExtractionError struct {
	VideoID string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("stream extraction failed for %s: %v", e.VideoID, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StreamInfo is one extracted playback descriptor.
type StreamInfo struct {
	VideoID      string    `json:"videoId"`
	StreamURL    string    `json:"streamUrl"`
	Title        string    `json:"title"`
	Duration     int64     `json:"duration"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Format       string    `json:"format"`
	Quality      string    `json:"quality"`
	MimeType     string    `json:"mimeType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// YtDlpExtractor resolves video ids to direct stream URLs by running the
// yt-dlp binary. A weighted semaphore bounds how many subprocesses run at
// once across all requests.
type YtDlpExtractor struct {
	path       string
	timeout    time.Duration
	geoCountry string
	sem        *semaphore.Weighted
	runCommand func(ctx context.Context, path string, args []string) ([]byte, []byte, error)
}

// NewYtDlpExtractor creates an extractor. maxConcurrent bounds simultaneous
// yt-dlp processes; zero or negative defaults to 4.
func NewYtDlpExtractor(path string, timeout time.Duration, geoCountry string, maxConcurrent int) *YtDlpExtractor {
	if path == "" {
		path = defaultYtDlpPath
	}
	if timeout <= 0 {
		timeout = defaultYtDlpTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &YtDlpExtractor{
		path:       path,
		timeout:    timeout,
		geoCountry: geoCountry,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		runCommand: runYtDlp,
	}
}

// Extract resolves videoID to a playable stream URL. There is no retry:
// one subprocess run per call, and any failure maps to *ExtractionError so
// the caller can hand extraction back to the device.
func (e *YtDlpExtractor) Extract(ctx context.Context, videoID, quality string) (*StreamInfo, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for extraction slot: %w", err)
	}
	defer e.sem.Release(1)

	cmdCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := e.buildArgs(videoID)
	start := time.Now()
	stdout, stderr, err := e.runCommand(cmdCtx, e.path, args)
	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			logger.Warn("yt-dlp timed out",
				logger.String("videoId", videoID),
				logger.Duration("timeout", e.timeout))
			return nil, &ExtractionError{VideoID: videoID, Err: fmt.Errorf("timed out after %s", e.timeout)}
		}
		return nil, &ExtractionError{VideoID: videoID,
			Err: fmt.Errorf("yt-dlp failed: %w: %s", err, firstLine(stderr))}
	}

	info, err := parseStreamInfo(stdout, videoID, quality)
	if err != nil {
		return nil, &ExtractionError{VideoID: videoID, Err: err}
	}

	logger.Info("extracted stream url",
		logger.String("videoId", videoID),
		logger.String("format", info.Format),
		logger.Duration("took", time.Since(start)))
	return info, nil
}

func (e *YtDlpExtractor) buildArgs(videoID string) []string {
	args := []string{
		"--dump-json",
		"--no-warnings",
		"--no-playlist",
		"--geo-bypass",
	}
	if e.geoCountry != "" {
		args = append(args, "--geo-bypass-country", e.geoCountry)
	}
	return append(args, "https://www.youtube.com/watch?v="+videoID)
}

func runYtDlp(ctx context.Context, path string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ytDlpVideo is the subset of yt-dlp's --dump-json output we read.
type ytDlpVideo struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Duration  float64       `json:"duration"`
	Thumbnail string        `json:"thumbnail"`
	URL       string        `json:"url"`
	Formats   []ytDlpFormat `json:"formats"`
}

type ytDlpFormat struct {
	FormatID string  `json:"format_id"`
	URL      string  `json:"url"`
	Ext      string  `json:"ext"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	Height   int     `json:"height"`
	TBR      float64 `json:"tbr"`
}

// isProgressive reports whether the format carries both audio and video,
// i.e. is playable without muxing.
func (f ytDlpFormat) isProgressive() bool {
	return f.URL != "" &&
		f.VCodec != "" && f.VCodec != "none" &&
		f.ACodec != "" && f.ACodec != "none"
}

// parseStreamInfo picks a progressive format out of yt-dlp's JSON dump.
// Format 18 is preferred; failing that, the highest-resolution progressive
// format wins.
func parseStreamInfo(data []byte, videoID, quality string) (*StreamInfo, error) {
	var video ytDlpVideo
	if err := json.Unmarshal(data, &video); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}

	chosen := pickFormat(video.Formats)
	streamURL := ""
	formatID := ""
	switch {
	case chosen != nil:
		streamURL = chosen.URL
		formatID = chosen.FormatID
	case video.URL != "":
		// Some extractions put the selected URL at the top level.
		streamURL = video.URL
		formatID = progressiveItag
	}
	if streamURL == "" {
		return nil, fmt.Errorf("no progressive format available")
	}

	return &StreamInfo{
		VideoID:      videoID,
		StreamURL:    streamURL,
		Title:        video.Title,
		Duration:     int64(video.Duration),
		ThumbnailURL: video.Thumbnail,
		Format:       formatID,
		Quality:      quality,
		MimeType:     "video/mp4",
		ExpiresAt:    time.Now().UTC().Add(streamURLLifetime),
	}, nil
}

func pickFormat(formats []ytDlpFormat) *ytDlpFormat {
	var best *ytDlpFormat
	for i := range formats {
		f := &formats[i]
		if !f.isProgressive() {
			continue
		}
		if f.FormatID == progressiveItag {
			return f
		}
		if best == nil || f.Height > best.Height {
			best = f
		}
	}
	return best
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
