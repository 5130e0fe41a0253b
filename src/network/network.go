package network

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/go-resty/resty/v2"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
	retryBaseDelay = 200 * time.Millisecond
)

// FeedClient reads the REST views of a running feed server.
type FeedClient struct {
	client *resty.Client
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewFeedClient(baseURL string, log *logger.Logger) *FeedClient {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(requestTimeout)
	client.SetHeader("Accept", "application/json")

	return &FeedClient{
		client: client,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// BaseURLFromWS turns a subscriber URL (ws://host:port/ws) into the server's
// HTTP base URL.
func BaseURLFromWS(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", helpers.NewConfigurationError("invalid feed url", err)
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", helpers.NewConfigurationError(fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String(), nil
}

// -----------------------------------------------------------------------------

// Health fetches /api/health.
func (fc *FeedClient) Health(ctx context.Context) (*models.MHealth, error) {
	var health models.MHealth
	if err := fc.get(ctx, "/api/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// -----------------------------------------------------------------------------

// Snapshot fetches the last broadcast payload.
func (fc *FeedClient) Snapshot(ctx context.Context) (*models.MMarketState, error) {
	var state models.MMarketState
	if err := fc.get(ctx, "/api/snapshot", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// -----------------------------------------------------------------------------

// Settings fetches /api/config.
func (fc *FeedClient) Settings(ctx context.Context) (*models.MFeedSettings, error) {
	var settings models.MFeedSettings
	if err := fc.get(ctx, "/api/config", &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// -----------------------------------------------------------------------------

// get performs a GET with retries; only transport failures and 5xx are retried.
func (fc *FeedClient) get(ctx context.Context, path string, out interface{}) error {
	var permanent error

	err := helpers.RetryWithBackoff("GET "+path, maxRetries, retryBaseDelay, fc.Logger, func() error {
		resp, err := fc.client.R().
			SetContext(ctx).
			SetResult(out).
			Get(path)
		if err != nil {
			if ctx.Err() != nil {
				permanent = ctx.Err()
				return nil
			}
			return helpers.NewTransportError("request failed", err)
		}

		if resp.StatusCode() >= 500 {
			return helpers.NewTransportError(fmt.Sprintf("bad status: %d", resp.StatusCode()), nil)
		}
		if resp.StatusCode() != 200 {
			permanent = helpers.NewTransportError(fmt.Sprintf("bad status: %d", resp.StatusCode()), nil)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return permanent
}
