package domain

import (
	"testing"
	"time"
)

func TestSLAConfigDeadlines(t *testing.T) {
	created := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	cfg := &SLAConfig{TenantID: "cpt", ResponseHours: 4, ResolutionHours: 48}

	if got := cfg.ResponseDeadline(created); !got.Equal(created.Add(4 * time.Hour)) {
		t.Fatalf("response deadline = %v, want created+4h", got)
	}
	if got := cfg.ResolutionDeadline(created); !got.Equal(created.Add(48 * time.Hour)) {
		t.Fatalf("resolution deadline = %v, want created+48h", got)
	}
}

func TestSystemDefaultSLA(t *testing.T) {
	cfg := SystemDefaultSLA("cpt")
	if cfg.ResponseHours != DefaultResponseHours || cfg.ResolutionHours != DefaultResolutionHours {
		t.Fatalf("system default = %d/%d hours, want %d/%d",
			cfg.ResponseHours, cfg.ResolutionHours, DefaultResponseHours, DefaultResolutionHours)
	}
	if cfg.WarningThresholdPct != DefaultWarningThresholdPct {
		t.Fatalf("warning threshold = %d, want %d", cfg.WarningThresholdPct, DefaultWarningThresholdPct)
	}
	if cfg.Category != nil {
		t.Fatal("system default must not be category scoped")
	}
}
