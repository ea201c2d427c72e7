// Package stooq is the secondary-vendor client the price & returns store
// falls back to when the primary (Yahoo) vendor fails (spec.md §4.2).
// Stooq publishes daily OHLC history as plain CSV, which keeps this
// client much smaller than the primary's JSON chart API — there is no
// teacher analogue for a secondary vendor (the teacher has only one
// price source), so this is grounded directly on spec.md's fallback
// requirement plus the teacher's general HTTP-client-with-zerolog shape.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a Stooq CSV history client.
type Client struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a new Stooq client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://stooq.com",
		log:     log.With().Str("client", "stooq").Logger(),
	}
}

// DailyBar is one daily close observation.
type DailyBar struct {
	Date  time.Time
	Close float64
}

// GetDailyHistory fetches the daily close history for symbol between
// start and end from Stooq's CSV endpoint.
func (c *Client) GetDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]DailyBar, error) {
	endpoint := fmt.Sprintf("%s/q/d/l/?s=%s&d1=%s&d2=%s&i=d",
		c.baseURL, strings.ToLower(symbol), start.Format("20060102"), end.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("stooq: build request for %s: %w", symbol, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stooq: fetch history for %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stooq: status %d for %s", resp.StatusCode, symbol)
	}

	reader := csv.NewReader(resp.Body)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("stooq: parse csv for %s: %w", symbol, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("stooq: no history for %s", symbol)
	}

	// Header: Date,Open,High,Low,Close,Volume
	bars := make([]DailyBar, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 5 {
			continue
		}
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			continue
		}
		closeVal, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			continue
		}
		bars = append(bars, DailyBar{Date: date, Close: closeVal})
	}
	return bars, nil
}
