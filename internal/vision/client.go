package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/bdougie/framesort/internal/models"
)

// ErrMissingKey is returned by Analyze when no subscription key is configured.
var ErrMissingKey = errors.New("vision API subscription key is not set")

const (
	keyHeader      = "Ocp-Apim-Subscription-Key"
	visualFeatures = "Tags,Description"
)

type Config struct {
	BaseURL         string
	SubscriptionKey string
	Timeout         time.Duration
}

// Client calls the Computer Vision analyze endpoint.
type Client struct {
	http     *req.Client
	endpoint string
	key      string
	logger   *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	httpClient := req.C().SetUserAgent("framesort")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}

	return &Client{
		http:     httpClient,
		endpoint: base + "analyze",
		key:      cfg.SubscriptionKey,
		logger:   logger,
	}
}

// Analyze posts the image bytes and returns the tags and top caption.
//
// A non-2xx answer is logged and its body still decoded: error bodies decode
// into an Analysis without tags. Only transport failures and undecodable
// bodies are returned as errors. There is no retry.
func (c *Client) Analyze(ctx context.Context, image []byte) (*models.Analysis, error) {
	if c.key == "" {
		return nil, ErrMissingKey
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBodyBytes(image).
		SetContentType("application/octet-stream").
		SetHeader(keyHeader, c.key).
		SetQueryParam("visualFeatures", visualFeatures).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}

	body := resp.Bytes()
	if !resp.IsSuccessState() {
		c.logger.Error("vision API returned an error",
			"status", resp.StatusCode,
			"body", string(body),
		)
	}

	var result analyzeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode analyze response (status %d): %w", resp.StatusCode, err)
	}

	c.logger.Debug("analyze response",
		"request_id", result.RequestID,
		"tags", len(result.Tags),
	)
	return result.analysis(), nil
}
