package configs

import (
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "memory store defaults",
			env:  map[string]string{"STORE": "memory"},
			check: func(t *testing.T, c *Config) {
				if c.Server.Port != "8080" || c.Database.MaxRetries != 10 {
					t.Errorf("defaults = %+v", c)
				}
				if c.Scheduler.AlertSweepSchedule != "@hourly" || c.Market.QuoteCacheTTL != 30*time.Second {
					t.Errorf("scheduler/market = %+v %+v", c.Scheduler, c.Market)
				}
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"STORE":                   "postgres",
				"DATABASE_URL":            "postgres://localhost/marketwatch",
				"STORE_MAX_RETRIES":       "3",
				"ALERT_SWEEP_RETRY_DELAY": "30s",
				"QUOTE_CACHE_TTL":         "0s",
			},
			check: func(t *testing.T, c *Config) {
				if c.Database.MaxRetries != 3 || c.Scheduler.AlertSweepRetryDelay != 30*time.Second {
					t.Errorf("config = %+v", c)
				}
				if c.Market.QuoteCacheTTL != 0 {
					t.Errorf("quote ttl = %s", c.Market.QuoteCacheTTL)
				}
			},
		},
		{
			name:    "postgres needs url",
			env:     map[string]string{"STORE": "postgres", "DATABASE_URL": ""},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "unknown store",
			env:     map[string]string{"STORE": "sqlite"},
			wantErr: "unknown STORE",
		},
		{
			name:    "production needs secret",
			env:     map[string]string{"STORE": "memory", "GO_ENV": "production", "JWT_SECRET": ""},
			wantErr: "JWT_SECRET",
		},
		{
			name:    "bad duration",
			env:     map[string]string{"STORE": "memory", "QUOTE_CACHE_TTL": "soon"},
			wantErr: "failed to parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, cfg)
		})
	}
}
