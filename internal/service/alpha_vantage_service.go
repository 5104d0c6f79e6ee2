package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketwatch/internal/cache"
	"marketwatch/internal/domain"
)

// DefaultAlphaVantageURL is the AlphaVantage REST base
const DefaultAlphaVantageURL = "https://www.alphavantage.co"

// AlphaVantageService fetches daily price history
type AlphaVantageService struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	history    *cache.Cache
	logger     *zap.Logger
}

// NewAlphaVantageService creates a new AlphaVantageService
func NewAlphaVantageService(baseURL, apiKey string, history *cache.Cache, logger *zap.Logger) *AlphaVantageService {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	return &AlphaVantageService{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		history: history,
		logger:  logger,
	}
}

type dailySeriesResponse struct {
	TimeSeries map[string]struct {
		Close string `json:"4. close"`
	} `json:"Time Series (Daily)"`
	// set instead of the series on bad symbols or rate limiting
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
}

// GetDailyCloses returns the daily closing prices of symbol, oldest first
func (s *AlphaVantageService) GetDailyCloses(ctx context.Context, symbol string) ([]domain.DailyClose, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidArgument)
	}

	if v, ok := s.history.Get("daily:" + symbol); ok {
		return v.([]domain.DailyClose), nil
	}

	params := url.Values{
		"function": {"TIME_SERIES_DAILY"},
		"symbol":   {symbol},
		"apikey":   {s.apiKey},
	}
	endpoint := fmt.Sprintf("%s/query?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w: %w", symbol, domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", domain.ErrRemoteUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: alphavantage status=%d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}

	var raw dailySeriesResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal response: %w", domain.ErrRemoteUnavailable, err)
	}

	switch {
	case raw.ErrorMessage != "":
		return nil, fmt.Errorf("no history for %s: %w", symbol, domain.ErrNotFound)
	case raw.Note != "" || raw.Information != "":
		s.logger.Warn("alphavantage refused request",
			zap.String("symbol", symbol),
			zap.String("note", raw.Note+raw.Information),
		)
		return nil, fmt.Errorf("%w: alphavantage rate limited", domain.ErrRemoteUnavailable)
	}

	closes := make([]domain.DailyClose, 0, len(raw.TimeSeries))
	for day, point := range raw.TimeSeries {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			s.logger.Debug("skipping malformed date", zap.String("date", day))
			continue
		}
		price, err := decimal.NewFromString(point.Close)
		if err != nil {
			s.logger.Debug("skipping malformed close", zap.String("date", day), zap.String("close", point.Close))
			continue
		}
		closes = append(closes, domain.DailyClose{Date: date, Close: price})
	}

	sort.Slice(closes, func(i, j int) bool { return closes[i].Date.Before(closes[j].Date) })

	s.history.Set("daily:"+symbol, closes)
	return closes, nil
}
