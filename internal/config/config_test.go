package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CommissionBPS != 200 {
		t.Fatalf("default commission bps = %d", cfg.CommissionBPS)
	}
	if cfg.Currency != "PHP" {
		t.Fatalf("default currency = %q", cfg.Currency)
	}
	if cfg.SettleHold != 168*time.Hour {
		t.Fatalf("default hold = %v", cfg.SettleHold)
	}
}

func TestLoadRejectsRateOutOfRange(t *testing.T) {
	t.Setenv("PALENGKE_COMMISSION_BPS", "10001")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for bps > 10000")
	}
}

func TestEnvOverridesAndFallbacks(t *testing.T) {
	t.Setenv("PALENGKE_SETTLE_HOLD", "72h")
	t.Setenv("PALENGKE_OUTBOX_POLL_INTERVAL", "not-a-duration")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SettleHold != 72*time.Hour {
		t.Fatalf("hold override ignored: %v", cfg.SettleHold)
	}
	if cfg.OutboxPollEvery != 5*time.Second {
		t.Fatalf("bad duration should fall back to default, got %v", cfg.OutboxPollEvery)
	}
}
