package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the latest market snapshot for a symbol
type Quote struct {
	Symbol        string          `json:"symbol"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	Change        decimal.Decimal `json:"change"`
	PercentChange decimal.Decimal `json:"percent_change"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Open          decimal.Decimal `json:"open"`
	PreviousClose decimal.Decimal `json:"previous_close"`
}

// SymbolMatch is one result of a symbol lookup
type SymbolMatch struct {
	Symbol        string `json:"symbol"`
	DisplaySymbol string `json:"display_symbol"`
	Description   string `json:"description"`
	Type          string `json:"type"`
}

// CompanyProfile describes the company behind a symbol
type CompanyProfile struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Country           string          `json:"country"`
	Currency          string          `json:"currency"`
	Exchange          string          `json:"exchange"`
	Industry          string          `json:"industry"`
	IPODate           string          `json:"ipo_date,omitempty"`
	MarketCapMillions decimal.Decimal `json:"market_cap_millions"`
	SharesOutstanding decimal.Decimal `json:"shares_outstanding_millions"`
	LogoURL           string          `json:"logo_url,omitempty"`
	WebURL            string          `json:"web_url,omitempty"`
}

// NewsArticle is one headline about a company
type NewsArticle struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Category    string    `json:"category"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// DailyClose is one point of a daily price series
type DailyClose struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// PriceAlert describes a crossed target delivered to the user
type PriceAlert struct {
	UserID       string          `json:"user_id"`
	Symbol       string          `json:"symbol"`
	TargetPrice  decimal.Decimal `json:"target_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// QuoteSource fetches current quotes
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// RateSource fetches currency conversion rates relative to base
type RateSource interface {
	GetLatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// AlertNotifier delivers user-visible price alerts
type AlertNotifier interface {
	SendPriceAlert(ctx context.Context, alert PriceAlert) error
}

// SnapshotPublisher fans out portfolio snapshots after each commit
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot *PortfolioSnapshot) error
}
