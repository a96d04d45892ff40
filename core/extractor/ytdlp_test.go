package extractor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDump = `{
	"id": "dQw4w9WgXcQ",
	"title": "Test Video",
	"duration": 212.5,
	"thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq720.jpg",
	"formats": [
		{"format_id": "251", "url": "https://cdn/audio", "ext": "webm", "vcodec": "none", "acodec": "opus"},
		{"format_id": "137", "url": "https://cdn/video-only", "ext": "mp4", "vcodec": "avc1", "acodec": "none", "height": 1080},
		{"format_id": "18", "url": "https://cdn/progressive-360", "ext": "mp4", "vcodec": "avc1.42001E", "acodec": "mp4a.40.2", "height": 360},
		{"format_id": "22", "url": "https://cdn/progressive-720", "ext": "mp4", "vcodec": "avc1.64001F", "acodec": "mp4a.40.2", "height": 720}
	]
}`

func TestParseStreamInfoPrefersFormat18(t *testing.T) {
	info, err := parseStreamInfo([]byte(sampleDump), "dQw4w9WgXcQ", "medium")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/progressive-360", info.StreamURL)
	assert.Equal(t, "18", info.Format)
	assert.Equal(t, "Test Video", info.Title)
	assert.Equal(t, int64(212), info.Duration)
	assert.Equal(t, "video/mp4", info.MimeType)
	assert.Equal(t, "medium", info.Quality)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), info.ExpiresAt, time.Minute)
}

func TestParseStreamInfoFallsBackToBestProgressive(t *testing.T) {
	dump := `{
		"id": "abc",
		"title": "No 18",
		"duration": 10,
		"formats": [
			{"format_id": "137", "url": "https://cdn/video-only", "vcodec": "avc1", "acodec": "none", "height": 1080},
			{"format_id": "22", "url": "https://cdn/progressive-720", "vcodec": "avc1", "acodec": "mp4a", "height": 720},
			{"format_id": "36", "url": "https://cdn/progressive-240", "vcodec": "mp4v", "acodec": "mp4a", "height": 240}
		]
	}`
	info, err := parseStreamInfo([]byte(dump), "abc", "medium")
	require.NoError(t, err)
	assert.Equal(t, "22", info.Format)
	assert.Equal(t, "https://cdn/progressive-720", info.StreamURL)
}

func TestParseStreamInfoTopLevelURL(t *testing.T) {
	dump := `{"id": "abc", "title": "Flat", "duration": 5, "url": "https://cdn/direct"}`
	info, err := parseStreamInfo([]byte(dump), "abc", "medium")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/direct", info.StreamURL)
}

func TestParseStreamInfoNoProgressiveFormat(t *testing.T) {
	dump := `{
		"id": "abc",
		"title": "Segmented only",
		"formats": [
			{"format_id": "251", "url": "https://cdn/audio", "vcodec": "none", "acodec": "opus"},
			{"format_id": "137", "url": "https://cdn/video", "vcodec": "avc1", "acodec": "none"}
		]
	}`
	_, err := parseStreamInfo([]byte(dump), "abc", "medium")
	assert.Error(t, err)
}

func TestParseStreamInfoRejectsGarbage(t *testing.T) {
	_, err := parseStreamInfo([]byte("ERROR: not json"), "abc", "medium")
	assert.Error(t, err)
}

func TestBuildArgs(t *testing.T) {
	e := NewYtDlpExtractor("", 0, "US", 0)
	args := e.buildArgs("dQw4w9WgXcQ")

	assert.Equal(t, []string{
		"--dump-json",
		"--no-warnings",
		"--no-playlist",
		"--geo-bypass",
		"--geo-bypass-country", "US",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}, args)
}

func TestExtractWrapsSubprocessFailure(t *testing.T) {
	e := NewYtDlpExtractor("yt-dlp", time.Second, "", 1)
	e.runCommand = func(ctx context.Context, path string, args []string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: Video unavailable\nmore detail"), errors.New("exit status 1")
	}

	_, err := e.Extract(context.Background(), "gone", "medium")
	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "gone", exErr.VideoID)
	assert.Contains(t, exErr.Error(), "Video unavailable")
	assert.NotContains(t, exErr.Error(), "more detail")
}

func TestExtractDoesNotRetry(t *testing.T) {
	e := NewYtDlpExtractor("yt-dlp", time.Second, "", 1)
	var calls int
	e.runCommand = func(ctx context.Context, path string, args []string) ([]byte, []byte, error) {
		calls++
		return nil, nil, errors.New("exit status 1")
	}

	_, err := e.Extract(context.Background(), "abc", "medium")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExtractBoundsConcurrency(t *testing.T) {
	e := NewYtDlpExtractor("yt-dlp", 5*time.Second, "", 2)

	var running, peak int
	gate := make(chan struct{})
	done := make(chan struct{}, 4)
	mu := make(chan struct{}, 1)
	mu <- struct{}{}

	e.runCommand = func(ctx context.Context, path string, args []string) ([]byte, []byte, error) {
		<-mu
		running++
		if running > peak {
			peak = running
		}
		mu <- struct{}{}

		<-gate

		<-mu
		running--
		mu <- struct{}{}
		return []byte(fmt.Sprintf(`{"id":"x","title":"t","url":"https://cdn/%s"}`, args[len(args)-1])), nil, nil
	}

	for i := 0; i < 4; i++ {
		go func() {
			_, _ = e.Extract(context.Background(), "abc", "medium")
			done <- struct{}{}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(gate)
	for i := 0; i < 4; i++ {
		<-done
	}

	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestExtractSemaphoreRespectsContext(t *testing.T) {
	e := NewYtDlpExtractor("yt-dlp", 5*time.Second, "", 1)
	block := make(chan struct{})
	e.runCommand = func(ctx context.Context, path string, args []string) ([]byte, []byte, error) {
		<-block
		return nil, nil, errors.New("never reached cleanly")
	}

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = e.Extract(context.Background(), "holder", "medium")
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Extract(ctx, "waiter", "medium")
	require.Error(t, err)

	var exErr *ExtractionError
	assert.False(t, errors.As(err, &exErr), "a queue timeout is not an extraction failure")
	close(block)
}
