package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	m, err := NewDefaultManager(store)
	if err != nil {
		t.Fatalf("NewDefaultManager failed: %v", err)
	}
	return m, path
}

func TestDefaults(t *testing.T) {
	m, _ := newTestManager(t)

	section, ok := m.GetSection(SectionIDStreaming)
	if !ok {
		t.Fatalf("streaming section not registered")
	}
	streaming := section.(*StreamingSection)
	if streaming.DefaultFps != 30 || streaming.MinFps != 5 || streaming.MaxFps != 60 {
		t.Fatalf("unexpected streaming defaults: %+v", streaming)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m, path := newTestManager(t)

	browser, _ := m.GetSection(SectionIDBrowser)
	b := browser.(*BrowserSection)
	b.MaxBrowsers = 9

	if err := m.SaveAll(); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}

	store2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	m2, err := NewDefaultManager(store2)
	if err != nil {
		t.Fatalf("NewDefaultManager failed: %v", err)
	}
	if err := m2.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	browser2, _ := m2.GetSection(SectionIDBrowser)
	if browser2.(*BrowserSection).MaxBrowsers != 9 {
		t.Fatalf("expected persisted MaxBrowsers=9, got %d", browser2.(*BrowserSection).MaxBrowsers)
	}
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	m, _ := newTestManager(t)

	t.Setenv("MAX_BROWSERS", "12")
	t.Setenv("DEFAULT_FPS", "24")
	t.Setenv("CORS_ORIGIN", "https://example.com")

	if err := ApplyEnv(m); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	browser, _ := m.GetSection(SectionIDBrowser)
	if browser.(*BrowserSection).MaxBrowsers != 12 {
		t.Fatalf("expected env override for MAX_BROWSERS")
	}

	streaming, _ := m.GetSection(SectionIDStreaming)
	if streaming.(*StreamingSection).DefaultFps != 24 {
		t.Fatalf("expected env override for DEFAULT_FPS")
	}

	security, _ := m.GetSection(SectionIDSecurity)
	if security.(*SecuritySection).CORSOrigin != "https://example.com" {
		t.Fatalf("expected env override for CORS_ORIGIN")
	}
}

func TestApplyEnvRejectsUnparseableInt(t *testing.T) {
	m, _ := newTestManager(t)
	t.Setenv("MAX_BROWSERS", "not-a-number")

	if err := ApplyEnv(m); err == nil {
		t.Fatalf("expected error for unparseable MAX_BROWSERS")
	}
}

func TestSeedFromYAML(t *testing.T) {
	m, _ := newTestManager(t)

	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	contents := "sections:\n  browser:\n    max_browsers: 3\n    default_url: \"https://example.com\"\n"
	if err := os.WriteFile(seedPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := SeedFromYAML(m, seedPath); err != nil {
		t.Fatalf("SeedFromYAML failed: %v", err)
	}

	browser, _ := m.GetSection(SectionIDBrowser)
	b := browser.(*BrowserSection)
	if b.MaxBrowsers != 3 || b.DefaultURL != "https://example.com" {
		t.Fatalf("unexpected section after seed: %+v", b)
	}
}

func TestSeedFromYAMLUnknownSection(t *testing.T) {
	m, _ := newTestManager(t)

	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	contents := "sections:\n  nonexistent:\n    foo: 1\n"
	if err := os.WriteFile(seedPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := SeedFromYAML(m, seedPath); err == nil {
		t.Fatalf("expected error for unknown section")
	}
}
