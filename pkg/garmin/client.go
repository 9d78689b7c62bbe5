// Package garmin talks to the Garmin Health API using OAuth1-signed requests.
package garmin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dghubble/oauth1"

	httputil "github.com/quantifiedself/ingest-server/pkg/infrastructure/http"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

// ActivityFileURL is the wellness endpoint serving binary activity files.
const ActivityFileURL = "https://healthapi.garmin.com/wellness-api/rest/activityFile"

// Client downloads activity files signed with the app's consumer pair and a
// user's token pair. It performs no retries; the queue processor owns retry
// policy.
type Client struct {
	ConsumerKey    string
	ConsumerSecret string

	// BaseURL overrides ActivityFileURL, for tests.
	BaseURL string
	// HTTPClient is the base transport the OAuth1 signer wraps. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger
}

func NewClient(consumerKey, consumerSecret string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Logger:         logger,
	}
}

func (c *Client) endpoint() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return ActivityFileURL
}

// DownloadActivityFile fetches the raw activity file for activityID. The body
// is returned as-is; activity files are binary and must not be transformed.
// HTTP errors come back as *httputil.HTTPError carrying the status code.
func (c *Client) DownloadActivityFile(ctx context.Context, cred *types.ServiceCredential, activityID string) ([]byte, error) {
	config := oauth1.NewConfig(c.ConsumerKey, c.ConsumerSecret)
	token := oauth1.NewToken(cred.AccessToken, cred.AccessTokenSecret)

	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, c.HTTPClient)
	}
	httpClient := config.Client(ctx, token)

	fileURL := fmt.Sprintf("%s?id=%s", c.endpoint(), url.QueryEscape(activityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build activity file request: %w", err)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download activity file: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read activity file body: %w", err)
	}

	c.Logger.Info("Downloaded activity file",
		"activity_id", activityID,
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())

	return data, nil
}
