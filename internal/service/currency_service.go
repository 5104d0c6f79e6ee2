package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketwatch/internal/cache"
	"marketwatch/internal/domain"
)

// DefaultFrankfurterURL is the Frankfurter REST base
const DefaultFrankfurterURL = "https://api.frankfurter.app"

// CurrencyService fetches exchange rates from Frankfurter
type CurrencyService struct {
	httpClient *http.Client
	baseURL    string
	rates      *cache.Cache
	logger     *zap.Logger
}

// NewCurrencyService creates a new CurrencyService
func NewCurrencyService(baseURL string, rates *cache.Cache, logger *zap.Logger) *CurrencyService {
	if baseURL == "" {
		baseURL = DefaultFrankfurterURL
	}
	return &CurrencyService{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		rates:   rates,
		logger:  logger,
	}
}

var _ domain.RateSource = (*CurrencyService)(nil)

type frankfurterLatest struct {
	Amount decimal.Decimal            `json:"amount"`
	Base   string                     `json:"base"`
	Date   string                     `json:"date"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

// GetLatestRates returns units of each currency per one unit of base. The
// base itself is included with rate 1.
func (s *CurrencyService) GetLatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = domain.DefaultCurrencyCode
	}

	if v, ok := s.rates.Get("rates:" + base); ok {
		return copyRates(v.(map[string]decimal.Decimal)), nil
	}

	endpoint := fmt.Sprintf("%s/latest?%s", s.baseURL, url.Values{"from": {base}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w: %w", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: frankfurter status=%d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}

	var raw frankfurterLatest
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: failed to decode rates: %w", domain.ErrRemoteUnavailable, err)
	}

	rates := make(map[string]decimal.Decimal, len(raw.Rates)+1)
	for code, rate := range raw.Rates {
		rates[code] = rate
	}
	rates[base] = decimal.NewFromInt(1)

	s.logger.Debug("fetched currency rates", zap.String("base", base), zap.Int("count", len(rates)))
	s.rates.Set("rates:"+base, rates)
	return copyRates(rates), nil
}

func copyRates(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
