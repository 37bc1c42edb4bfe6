package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MILLBOOK_DB_PATH", "")
	t.Setenv("COMPANY_ID", "")
	t.Setenv("SYNC_INTERVAL_SECONDS", "")
	t.Setenv("REMOTE_API_URL", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.SQLitePath != "millbook.db" {
		t.Fatalf("expected default sqlite path, got %q", cfg.SQLitePath)
	}
	if cfg.CompanyID != "mill-1" {
		t.Fatalf("expected default company id, got %q", cfg.CompanyID)
	}
	if cfg.SyncIntervalSeconds != 30 {
		t.Fatalf("expected default sync interval 30, got %d", cfg.SyncIntervalSeconds)
	}
	if cfg.SyncEnabled() {
		t.Fatal("sync should be disabled without REMOTE_API_URL")
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadSyncSettings(t *testing.T) {
	t.Setenv("REMOTE_API_URL", "https://hq.example.com/api/")
	t.Setenv("SYNC_INTERVAL_SECONDS", "bogus")

	cfg := Load()
	if !cfg.SyncEnabled() {
		t.Fatal("sync should be enabled when REMOTE_API_URL is set")
	}
	if cfg.RemoteAPIURL != "https://hq.example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.RemoteAPIURL)
	}
	if cfg.SyncIntervalSeconds != 30 {
		t.Fatalf("expected invalid interval to fall back to 30, got %d", cfg.SyncIntervalSeconds)
	}
}
