package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"mediavault/cache"
	"mediavault/core/extractor"
	"mediavault/logger"
)

// TTLConfig carries the per-endpoint freshness windows.
type TTLConfig struct {
	Search   time.Duration
	Trending time.Duration
	Video    time.Duration
	Stream   time.Duration
	Channel  time.Duration
	Comments time.Duration
	Negative time.Duration
}

// StreamExtractor resolves a video id to a direct stream URL.
type StreamExtractor interface {
	Extract(ctx context.Context, videoID, quality string) (*extractor.StreamInfo, error)
}

// MetadataClient is the upstream surface the service consumes.
type MetadataClient interface {
	Search(ctx context.Context, query string, page int) (json.RawMessage, error)
	Trending(ctx context.Context, region, kind string) (json.RawMessage, error)
	Video(ctx context.Context, videoID string) (json.RawMessage, error)
	Channel(ctx context.Context, channelID string, page int) (json.RawMessage, error)
	Comments(ctx context.Context, videoID, continuation string) (json.RawMessage, error)
}

// Service fronts the upstream video platform with the resource cache.
// Metadata lookups are cached verbatim; stream lookups run through the
// extractor and additionally carry a hard URL expiry.
type Service struct {
	client  MetadataClient
	streams StreamExtractor
	cache   *cache.ResourceCache
	ttl     TTLConfig
	quality string
}

// NewService wires the proxy service together.
func NewService(client MetadataClient, streams StreamExtractor, resourceCache *cache.ResourceCache, ttl TTLConfig, defaultQuality string) *Service {
	return &Service{
		client:  client,
		streams: streams,
		cache:   resourceCache,
		ttl:     ttl,
		quality: defaultQuality,
	}
}

// StreamResult is the stream endpoint's payload. A negative result keeps
// Success false and tells the device to run extraction itself.
type StreamResult struct {
	Success         bool                  `json:"success"`
	Data            *extractor.StreamInfo `json:"data,omitempty"`
	ExtractOnDevice bool                  `json:"extractOnDevice,omitempty"`
	VideoID         string                `json:"videoId,omitempty"`
	Error           string                `json:"error,omitempty"`
}

// Search proxies a paginated search. The returned bool reports whether the
// payload was served from cache.
func (s *Service) Search(ctx context.Context, query string, page int, forceRefresh bool) (json.RawMessage, bool, error) {
	if page < 1 {
		page = 1
	}
	desc := cache.Descriptor{Kind: "search", Parts: []string{query, strconv.Itoa(page)}}
	return s.cachedMetadata(ctx, desc, s.ttl.Search, forceRefresh, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Search(ctx, query, page)
	})
}

// Trending proxies the trending feed for a region. kind narrows the feed to
// one upstream section (music, gaming, movies) and is part of the cache
// identity; empty means the default feed.
func (s *Service) Trending(ctx context.Context, region, kind string, forceRefresh bool) (json.RawMessage, bool, error) {
	desc := cache.Descriptor{Kind: "trending", Parts: []string{region, kind}}
	return s.cachedMetadata(ctx, desc, s.ttl.Trending, forceRefresh, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Trending(ctx, region, kind)
	})
}

// Video proxies one video's metadata.
func (s *Service) Video(ctx context.Context, videoID string, forceRefresh bool) (json.RawMessage, bool, error) {
	desc := cache.Descriptor{Kind: "video", Parts: []string{videoID}}
	return s.cachedMetadata(ctx, desc, s.ttl.Video, forceRefresh, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Video(ctx, videoID)
	})
}

// Channel proxies a channel's uploads page.
func (s *Service) Channel(ctx context.Context, channelID string, page int, forceRefresh bool) (json.RawMessage, bool, error) {
	if page < 1 {
		page = 1
	}
	desc := cache.Descriptor{Kind: "channel", Parts: []string{channelID, strconv.Itoa(page)}}
	return s.cachedMetadata(ctx, desc, s.ttl.Channel, forceRefresh, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Channel(ctx, channelID, page)
	})
}

// Comments proxies a page of comments.
func (s *Service) Comments(ctx context.Context, videoID, continuation string, forceRefresh bool) (json.RawMessage, bool, error) {
	desc := cache.Descriptor{Kind: "comments", Parts: []string{videoID, continuation}}
	return s.cachedMetadata(ctx, desc, s.ttl.Comments, forceRefresh, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Comments(ctx, videoID, continuation)
	})
}

// cachedMetadata reads through the cache for an upstream lookup. Upstream
// failures are never cached; the next caller tries again.
func (s *Service) cachedMetadata(ctx context.Context, desc cache.Descriptor, ttl time.Duration, forceRefresh bool, fetch func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, bool, error) {
	payload, cached, err := s.cache.GetOrCompute(ctx, desc, forceRefresh, func(ctx context.Context) (*cache.Value, error) {
		body, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return &cache.Value{Payload: body, TTL: ttl}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return payload, cached, nil
}

// Stream resolves a playable URL for videoID. Extraction failures come back
// as a negative StreamResult, which is itself cached briefly so a broken
// video does not hammer the extractor. Only extraction failures are cached
// this way; infrastructure errors still surface as errors.
func (s *Service) Stream(ctx context.Context, videoID, quality string, forceRefresh bool) (*StreamResult, bool, error) {
	if quality == "" {
		quality = s.quality
	}
	desc := cache.Descriptor{Kind: "stream", Parts: []string{videoID, quality}}

	payload, cached, err := s.cache.GetOrCompute(ctx, desc, forceRefresh, func(ctx context.Context) (*cache.Value, error) {
		info, err := s.streams.Extract(ctx, videoID, quality)
		if err != nil {
			var exErr *extractor.ExtractionError
			if errors.As(err, &exErr) {
				logger.Warn("stream extraction failed, deferring to device",
					logger.String("videoId", videoID),
					logger.ErrorField(err))
				return negativeValue(videoID, s.ttl.Negative)
			}
			return nil, err
		}

		result := &StreamResult{Success: true, Data: info}
		body, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		return &cache.Value{
			Payload:    body,
			TTL:        s.ttl.Stream,
			HardExpiry: info.ExpiresAt,
		}, nil
	})
	if err != nil {
		return nil, false, err
	}

	result := &StreamResult{}
	if err := json.Unmarshal(payload, result); err != nil {
		return nil, false, err
	}
	return result, cached, nil
}

// The negative body carries a fixed message; the extractor's own diagnostics
// stay in the server log and never reach the device.
func negativeValue(videoID string, ttl time.Duration) (*cache.Value, error) {
	result := &StreamResult{
		Success:         false,
		ExtractOnDevice: true,
		VideoID:         videoID,
		Error:           "stream extraction failed",
	}
	body, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &cache.Value{Payload: body, TTL: ttl}, nil
}
