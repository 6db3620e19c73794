// Package youtube implements the API acquisition engine: a quota-aware
// client over the public data API and the whitelist-driven comment collector.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/ratelimit"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// ErrQuotaExceeded marks a server-side daily quota refusal. Unlike rate
// limiting, it does not recover within a run, so it is terminal for the run.
var ErrQuotaExceeded = errors.New("api quota exceeded")

// maxIDsPerList is the server's cap on ids per list call.
const maxIDsPerList = 50

// ClientConfig holds the API client settings.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is a thin typed client over the data API's videos, search, and
// commentThreads surfaces.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	quota      *QuotaTracker
	logger     *zap.Logger
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg ClientConfig, quota *QuotaTracker, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("youtube: api key is required")
	}
	if quota == nil {
		return nil, errors.New("youtube: quota tracker is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		quota:      quota,
		logger:     logger,
	}, nil
}

// Video is the metadata subset the collector needs for pre-pass filtering.
type Video struct {
	ID           string
	Title        string
	ChannelID    string
	ChannelTitle string
	PublishedAt  time.Time
	ViewCount    int
	CommentCount int
}

// Comment is one top-level comment thread entry.
type Comment struct {
	ID          string
	VideoID     string
	AuthorName  string
	Text        string
	LikeCount   int
	ReplyCount  int
	PublishedAt time.Time
}

// Videos fetches metadata for up to maxIDsPerList video ids per call,
// chunking larger inputs. Unknown ids are silently absent from the result.
func (c *Client) Videos(ctx context.Context, ids []string) ([]Video, error) {
	var videos []Video
	for len(ids) > 0 {
		chunk := ids
		if len(chunk) > maxIDsPerList {
			chunk = chunk[:maxIDsPerList]
		}
		ids = ids[len(chunk):]

		var resp videoListResponse
		params := url.Values{
			"part": {"snippet,statistics"},
			"id":   {strings.Join(chunk, ",")},
		}
		if err := c.get(ctx, "videos", params, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			videos = append(videos, Video{
				ID:           item.ID,
				Title:        item.Snippet.Title,
				ChannelID:    item.Snippet.ChannelID,
				ChannelTitle: item.Snippet.ChannelTitle,
				PublishedAt:  item.Snippet.PublishedAt,
				ViewCount:    atoi(item.Statistics.ViewCount),
				CommentCount: atoi(item.Statistics.CommentCount),
			})
		}
	}
	return videos, nil
}

// ChannelUploads returns the ids of the channel's most recent uploads. This
// is the expensive call of the API: one invocation costs costSearch units.
func (c *Client) ChannelUploads(ctx context.Context, channelID string, max int) ([]string, error) {
	if max <= 0 || max > maxIDsPerList {
		max = maxIDsPerList
	}
	var resp searchListResponse
	params := url.Values{
		"part":       {"id"},
		"channelId":  {channelID},
		"type":       {"video"},
		"order":      {"date"},
		"maxResults": {strconv.Itoa(max)},
	}
	if err := c.get(ctx, "search", params, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

// CommentThreads fetches one page of top-level comments for a video. The
// returned token pages forward; an empty token means the last page.
func (c *Client) CommentThreads(ctx context.Context, videoID, pageToken string, pageSize int) ([]Comment, string, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	params := url.Values{
		"part":       {"snippet"},
		"videoId":    {videoID},
		"order":      {"time"},
		"textFormat": {"plainText"},
		"maxResults": {strconv.Itoa(pageSize)},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	var resp commentThreadListResponse
	if err := c.get(ctx, "commentThreads", params, &resp); err != nil {
		return nil, "", err
	}

	comments := make([]Comment, 0, len(resp.Items))
	for _, item := range resp.Items {
		top := item.Snippet.TopLevelComment.Snippet
		comments = append(comments, Comment{
			ID:          item.Snippet.TopLevelComment.ID,
			VideoID:     item.Snippet.VideoID,
			AuthorName:  top.AuthorDisplayName,
			Text:        top.TextDisplay,
			LikeCount:   top.LikeCount,
			ReplyCount:  item.Snippet.TotalReplyCount,
			PublishedAt: top.PublishedAt,
		})
	}
	return comments, resp.NextPageToken, nil
}

// get issues one API call, spending quota and classifying failures.
func (c *Client) get(ctx context.Context, resource string, params url.Values, out any) error {
	c.quota.Spend(resource)

	params.Set("key", c.apiKey)
	endpoint := c.baseURL + "/" + resource + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", resource, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", resource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", resource, err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.classifyError(resource, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", resource, err)
	}
	return nil
}

// classifyError separates the three failure classes: quota exhaustion is
// terminal for the run, rate limiting is retryable with backoff, everything
// else is a plain call failure.
func (c *Client) classifyError(resource string, status int, body []byte) error {
	var apiErr apiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	reason := ""
	if len(apiErr.Error.Errors) > 0 {
		reason = apiErr.Error.Errors[0].Reason
	}
	switch {
	case status == http.StatusForbidden && reason == "quotaExceeded":
		return fmt.Errorf("%s: %w", resource, ErrQuotaExceeded)
	case status == http.StatusTooManyRequests,
		reason == "rateLimitExceeded",
		reason == "userRateLimitExceeded":
		return fmt.Errorf("%s status %d: %w", resource, status, ratelimit.ErrRateLimited)
	default:
		c.logger.Debug("api call failed",
			zap.String("resource", resource),
			zap.Int("status", status),
			zap.String("reason", reason),
		)
		return fmt.Errorf("%s: status %d %s", resource, status, apiErr.Error.Message)
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Wire types. Statistics counters arrive as strings.

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string    `json:"title"`
			ChannelID    string    `json:"channelId"`
			ChannelTitle string    `json:"channelTitle"`
			PublishedAt  time.Time `json:"publishedAt"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Domain string `json:"domain"`
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type commentThreadListResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			VideoID         string `json:"videoId"`
			TotalReplyCount int    `json:"totalReplyCount"`
			TopLevelComment struct {
				ID      string `json:"id"`
				Snippet struct {
					AuthorDisplayName string    `json:"authorDisplayName"`
					TextDisplay       string    `json:"textDisplay"`
					LikeCount         int       `json:"likeCount"`
					PublishedAt       time.Time `json:"publishedAt"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}
