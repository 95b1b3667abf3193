package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDurationAcceptsSecondsAndGoSyntax(t *testing.T) {
	t.Setenv("TD_TIMEOUT", "15")
	if d, err := Duration("TD_TIMEOUT", time.Second); err != nil || d != 15*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	t.Setenv("TD_TIMEOUT", "1m30s")
	if d, err := Duration("TD_TIMEOUT", time.Second); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	t.Setenv("TD_TIMEOUT", "soon")
	if d, err := Duration("TD_TIMEOUT", time.Second); err == nil || d != time.Second {
		t.Fatalf("expected fallback with error, got %v, %v", d, err)
	}
}

func TestIntAndBoolAndList(t *testing.T) {
	t.Setenv("TD_BURST", "x")
	if n, err := Int("TD_BURST", 4); err == nil || n != 4 {
		t.Fatalf("got %d, %v", n, err)
	}
	t.Setenv("TD_FLAG", "off")
	if Bool("TD_FLAG", true) {
		t.Fatalf("off should be false")
	}
	t.Setenv("TD_ORIGINS", " https://a.example , ,https://b.example")
	if got := List("TD_ORIGINS"); len(got) != 2 || got[1] != "https://b.example" {
		t.Fatalf("list = %v", got)
	}
}

func TestFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	if err := os.WriteFile(path, []byte("refresh_cron: \"@every 5m\"\nweek_start: monday\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var dst struct {
		RefreshCron string `yaml:"refresh_cron"`
		WeekStart   string `yaml:"week_start"`
	}
	if err := File(path, &dst); err != nil {
		t.Fatalf("file: %v", err)
	}
	if dst.RefreshCron != "@every 5m" || dst.WeekStart != "monday" {
		t.Fatalf("dst = %+v", dst)
	}
	if err := File("", &dst); err != nil {
		t.Fatalf("empty path: %v", err)
	}
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TD_A=from-file\nTD_B=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TD_A", "from-env")
	t.Setenv("TD_B", "")
	os.Unsetenv("TD_B")
	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if os.Getenv("TD_A") != "from-env" || os.Getenv("TD_B") != "from-file" {
		t.Fatalf("A=%q B=%q", os.Getenv("TD_A"), os.Getenv("TD_B"))
	}
}
