// Package yahoo is a thin primary-vendor client for the price & returns
// store (spec.md §4.2). Adapted from the teacher's fundamentals/analyst
// Yahoo client: the HTTP plumbing and symbol-conversion helper are kept,
// but the surface is narrowed to the one thing this module's domain
// needs — historical daily closes — since fundamentals/analyst data has
// no home in a risk-analytics core.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a Yahoo Finance HTTP client used as the priceseries store's
// primary vendor.
type Client struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://query1.finance.yahoo.com",
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// GetSymbol converts a canonical root symbol to the Yahoo Finance symbol.
// Faithful translation of the teacher's symbol_converter.py logic: AAPL.US
// -> AAPL, 7203.JP -> 7203.T (different national suffix), European
// exchanges pass through unchanged.
func GetSymbol(symbol string, override *string) string {
	if override != nil && *override != "" {
		return *override
	}
	if strings.HasSuffix(symbol, ".US") {
		return strings.TrimSuffix(symbol, ".US")
	}
	if strings.HasSuffix(symbol, ".JP") {
		return strings.TrimSuffix(symbol, ".JP") + ".T"
	}
	return symbol
}

// chartResponse is the subset of Yahoo's chart API response this client
// uses.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// DailyBar is one daily observation: date plus close and adjusted close
// (the latter used for total-return series).
type DailyBar struct {
	Date     time.Time
	Close    float64
	AdjClose float64
}

// GetDailyHistory fetches daily bars for symbol between start and end
// (inclusive), using the "1d" interval chart endpoint.
func (c *Client) GetDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]DailyBar, error) {
	yfSymbol := GetSymbol(symbol, nil)

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "div,splits")

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(yfSymbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo: build request for %s: %w", symbol, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo: fetch chart for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo: read chart body for %s: %w", symbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: chart status %d for %s", resp.StatusCode, symbol)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("yahoo: decode chart for %s: %w", symbol, err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo: chart error for %s: %v", symbol, parsed.Chart.Error)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no chart result for %s", symbol)
	}

	result := parsed.Chart.Result[0]
	var closes []*float64
	if len(result.Indicators.Quote) > 0 {
		closes = result.Indicators.Quote[0].Close
	}
	var adjCloses []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adjCloses = result.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]DailyBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // missing bar (e.g. market holiday inside the range)
		}
		bar := DailyBar{
			Date:  time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Close: *closes[i],
		}
		if i < len(adjCloses) && adjCloses[i] != nil {
			bar.AdjClose = *adjCloses[i]
		} else {
			bar.AdjClose = bar.Close
		}
		bars = append(bars, bar)
	}
	return bars, nil
}
