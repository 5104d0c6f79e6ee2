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

const (
	// DefaultFinnhubURL is the Finnhub REST base
	DefaultFinnhubURL = "https://finnhub.io/api/v1"

	// NewsWindow is how far back company news is fetched
	NewsWindow = 7 * 24 * time.Hour

	finnhubDate = "2006-01-02"
)

// MarketPriceService fetches quotes, symbol lookups, company profiles and
// news from Finnhub
type MarketPriceService struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	quotes     *cache.Cache
	logger     *zap.Logger
	now        func() time.Time
}

// NewMarketPriceService creates a new MarketPriceService. quotes may be nil
// to disable caching.
func NewMarketPriceService(baseURL, apiKey string, quotes *cache.Cache, logger *zap.Logger) *MarketPriceService {
	if baseURL == "" {
		baseURL = DefaultFinnhubURL
	}
	return &MarketPriceService{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		quotes:  quotes,
		logger:  logger,
		now:     time.Now,
	}
}

var _ domain.QuoteSource = (*MarketPriceService)(nil)

type finnhubQuote struct {
	Current       decimal.NullDecimal `json:"c"`
	Change        decimal.NullDecimal `json:"d"`
	PercentChange decimal.NullDecimal `json:"dp"`
	High          decimal.NullDecimal `json:"h"`
	Low           decimal.NullDecimal `json:"l"`
	Open          decimal.NullDecimal `json:"o"`
	PreviousClose decimal.NullDecimal `json:"pc"`
}

type finnhubSearch struct {
	Count  int `json:"count"`
	Result []struct {
		Description   string `json:"description"`
		DisplaySymbol string `json:"displaySymbol"`
		Symbol        string `json:"symbol"`
		Type          string `json:"type"`
	} `json:"result"`
}

type finnhubProfile struct {
	Country              string              `json:"country"`
	Currency             string              `json:"currency"`
	Exchange             string              `json:"exchange"`
	FinnhubIndustry      string              `json:"finnhubIndustry"`
	IPO                  string              `json:"ipo"`
	Logo                 string              `json:"logo"`
	MarketCapitalization decimal.NullDecimal `json:"marketCapitalization"`
	Name                 string              `json:"name"`
	ShareOutstanding     decimal.NullDecimal `json:"shareOutstanding"`
	Ticker               string              `json:"ticker"`
	WebURL               string              `json:"weburl"`
}

type finnhubNews struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Image    string `json:"image"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

// GetQuote returns the latest quote for symbol. Finnhub answers unknown
// symbols with an all-zero quote, which is reported as ErrNotFound.
func (s *MarketPriceService) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidArgument)
	}

	if v, ok := s.quotes.Get("quote:" + symbol); ok {
		q := *v.(*domain.Quote)
		return &q, nil
	}

	var raw finnhubQuote
	if err := s.getJSON(ctx, "quote", url.Values{"symbol": {symbol}}, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}

	quote := &domain.Quote{
		Symbol:        symbol,
		CurrentPrice:  orZero(raw.Current),
		Change:        orZero(raw.Change),
		PercentChange: orZero(raw.PercentChange),
		High:          orZero(raw.High),
		Low:           orZero(raw.Low),
		Open:          orZero(raw.Open),
		PreviousClose: orZero(raw.PreviousClose),
	}
	if !quote.CurrentPrice.IsPositive() {
		return nil, fmt.Errorf("no quote for %s: %w", symbol, domain.ErrNotFound)
	}

	s.quotes.Set("quote:"+symbol, quote)
	q := *quote
	return &q, nil
}

// GetCompanyProfile returns the company behind symbol. Finnhub answers
// unknown symbols with an empty object, which is reported as ErrNotFound.
func (s *MarketPriceService) GetCompanyProfile(ctx context.Context, symbol string) (*domain.CompanyProfile, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidArgument)
	}

	if v, ok := s.quotes.Get("profile:" + symbol); ok {
		p := *v.(*domain.CompanyProfile)
		return &p, nil
	}

	var raw finnhubProfile
	if err := s.getJSON(ctx, "stock/profile2", url.Values{"symbol": {symbol}}, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch profile for %s: %w", symbol, err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("no profile for %s: %w", symbol, domain.ErrNotFound)
	}

	profile := &domain.CompanyProfile{
		Symbol:            symbol,
		Name:              raw.Name,
		Country:           raw.Country,
		Currency:          raw.Currency,
		Exchange:          raw.Exchange,
		Industry:          raw.FinnhubIndustry,
		IPODate:           raw.IPO,
		MarketCapMillions: orZero(raw.MarketCapitalization),
		SharesOutstanding: orZero(raw.ShareOutstanding),
		LogoURL:           raw.Logo,
		WebURL:            raw.WebURL,
	}

	s.quotes.Set("profile:"+symbol, profile)
	p := *profile
	return &p, nil
}

// GetCompanyNews returns the articles about symbol published within
// NewsWindow, newest first
func (s *MarketPriceService) GetCompanyNews(ctx context.Context, symbol string) ([]domain.NewsArticle, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidArgument)
	}

	if v, ok := s.quotes.Get("news:" + symbol); ok {
		return append([]domain.NewsArticle(nil), v.([]domain.NewsArticle)...), nil
	}

	to := s.now().UTC()
	params := url.Values{
		"symbol": {symbol},
		"from":   {to.Add(-NewsWindow).Format(finnhubDate)},
		"to":     {to.Format(finnhubDate)},
	}

	var raw []finnhubNews
	if err := s.getJSON(ctx, "company-news", params, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch news for %s: %w", symbol, err)
	}

	articles := make([]domain.NewsArticle, 0, len(raw))
	for _, n := range raw {
		if n.Headline == "" || n.URL == "" {
			continue
		}
		articles = append(articles, domain.NewsArticle{
			ID:          n.ID,
			Symbol:      symbol,
			Category:    n.Category,
			Headline:    n.Headline,
			Summary:     n.Summary,
			Source:      n.Source,
			URL:         n.URL,
			ImageURL:    n.Image,
			PublishedAt: time.Unix(n.Datetime, 0).UTC(),
		})
	}
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})

	s.quotes.Set("news:"+symbol, articles)
	return append([]domain.NewsArticle(nil), articles...), nil
}

// SearchSymbols looks up tickers matching query
func (s *MarketPriceService) SearchSymbols(ctx context.Context, query string) ([]domain.SymbolMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidArgument)
	}

	var raw finnhubSearch
	if err := s.getJSON(ctx, "search", url.Values{"q": {query}}, &raw); err != nil {
		return nil, fmt.Errorf("failed to search symbols: %w", err)
	}

	matches := make([]domain.SymbolMatch, 0, len(raw.Result))
	for _, r := range raw.Result {
		matches = append(matches, domain.SymbolMatch{
			Symbol:        r.Symbol,
			DisplaySymbol: r.DisplaySymbol,
			Description:   r.Description,
			Type:          r.Type,
		})
	}
	return matches, nil
}

func (s *MarketPriceService) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("token", s.apiKey)
	endpoint := fmt.Sprintf("%s/%s?%s", s.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %w", domain.ErrRemoteUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("finnhub request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return fmt.Errorf("%w: finnhub status=%d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %w", domain.ErrRemoteUnavailable, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

