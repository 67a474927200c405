package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUMMARY_CHUNK_SIZE", "")
	t.Setenv("WORKER_RUN_TIMEOUT", "")
	t.Setenv("PRICING_CREDITS_PER_LOCAL", "")
	t.Setenv("PRICING_FILE", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("QUEUE_DRIVER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SummaryChunkSize != 2000 || cfg.ContextChunkSize != 1000 {
		t.Fatalf("unexpected chunk sizes %d/%d", cfg.SummaryChunkSize, cfg.ContextChunkSize)
	}
	if cfg.WorkerRunTimeout != 5*time.Minute {
		t.Fatalf("expected default run timeout 5m, got %s", cfg.WorkerRunTimeout)
	}
	if cfg.Pricing.CreditsPerLocal.String() != "7.5" {
		t.Fatalf("expected credits per local 7.5, got %s", cfg.Pricing.CreditsPerLocal)
	}
	if cfg.StoreDriver != StoreDriverPostgres || cfg.QueueDriver != QueueDriverNATS {
		t.Fatalf("unexpected drivers %q/%q", cfg.StoreDriver, cfg.QueueDriver)
	}
}

func TestLoadParsesDurationsAndDecimals(t *testing.T) {
	t.Setenv("RETRY_DELAY", "45")
	t.Setenv("MAX_RUN_DURATION", "20m")
	t.Setenv("INITIAL_CREDITS", "12.5")
	t.Setenv("QUEUE_DRIVER", "RabbitMQ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetryDelay != 45*time.Second {
		t.Fatalf("expected bare integer as seconds, got %s", cfg.RetryDelay)
	}
	if cfg.MaxRunDuration != 20*time.Minute {
		t.Fatalf("expected 20m, got %s", cfg.MaxRunDuration)
	}
	if cfg.InitialCredits.String() != "12.5" {
		t.Fatalf("expected initial credits 12.5, got %s", cfg.InitialCredits)
	}
	if cfg.QueueDriver != QueueDriverRabbitMQ {
		t.Fatalf("expected rabbitmq driver, got %q", cfg.QueueDriver)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("CONTEXT_CHUNK_OVERLAP", "5000")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "STORE_DRIVER") || !strings.Contains(err.Error(), "context chunking") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestLoadRejectsHeartbeatStaleAfterShorterThanRenewal(t *testing.T) {
	t.Setenv("HEARTBEAT_STALE_AFTER", "45s")
	t.Setenv("HEARTBEAT_INTERVAL", "30s")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "HEARTBEAT_INTERVAL") {
		t.Fatalf("expected heartbeat window error, got %v", err)
	}

	t.Setenv("HEARTBEAT_STALE_AFTER", "90s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Fatalf("expected 30s heartbeat interval, got %s", cfg.HeartbeatInterval)
	}
}

func TestLoadOverlaysPricingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := "usd_per_token:\n  mind_map: \"0.00002\"\ncredits_per_local: \"10\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write pricing file: %v", err)
	}
	t.Setenv("PRICING_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pricing.MindMapUSDPerToken.String() != "0.00002" {
		t.Fatalf("expected mind map rate from file, got %s", cfg.Pricing.MindMapUSDPerToken)
	}
	if cfg.Pricing.CreditsPerLocal.String() != "10" {
		t.Fatalf("expected credits per local from file, got %s", cfg.Pricing.CreditsPerLocal)
	}
	if cfg.Pricing.SummaryUSDPerToken.String() != "0.000006" {
		t.Fatalf("expected summary rate to keep env default, got %s", cfg.Pricing.SummaryUSDPerToken)
	}
}

func TestLoadRejectsMalformedPricingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte("local_per_usd: \"abc\"\n"), 0o600); err != nil {
		t.Fatalf("write pricing file: %v", err)
	}
	t.Setenv("PRICING_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed pricing value")
	}
}
