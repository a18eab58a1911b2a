package rotation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"go.uber.org/zap"
)

// ErrMarketNotFound is returned when no market exists for a slug yet.
var ErrMarketNotFound = errors.New("market not found")

// GammaClient looks markets up by slug on the Polymarket Gamma API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGammaClient creates a new Gamma API client.
func NewGammaClient(baseURL string, logger *zap.Logger) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// MarketBySlug fetches one market.
func (c *GammaClient) MarketBySlug(ctx context.Context, slug string) (*types.GammaMarket, error) {
	params := url.Values{}
	params.Add("slug", slug)
	requestURL := fmt.Sprintf("%s/markets?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-updown/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		LookupErrorsTotal.Inc()
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	LookupDuration.Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		LookupErrorsTotal.Inc()
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	// Gamma returns a bare array
	var markets []types.GammaMarket
	err = json.Unmarshal(body, &markets)
	if err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	for i := range markets {
		if markets[i].Slug == slug {
			return &markets[i], nil
		}
	}

	c.logger.Debug("market-not-listed", zap.String("slug", slug))
	return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, slug)
}
