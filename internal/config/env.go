package config

import (
	"fmt"
	"os"
	"strconv"
)

// envInt reads name from the environment, returning ok=false if unset or
// empty, and ok=true with a non-nil error if set but unparseable (ApplyEnv
// returns that error to its caller).
func envInt(name string) (int, bool, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s=%q: %w", name, raw, err)
	}
	return n, true, nil
}

func envString(name string) (string, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

// ApplyEnv overlays the spec's environment-variable table (spec.md §6) onto
// sections already registered with m, in the CLI-flag > env-var > file >
// default precedence order: call this after LoadAll and before any CLI flag
// overrides are applied.
func ApplyEnv(m *Manager) error {
	server, _ := m.GetSection(SectionIDServer)
	srv := server.(*ServerSection)
	if v, ok := envString("HOST"); ok {
		srv.Host = v
	}
	if n, ok, err := envInt("PORT"); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if ok {
		srv.Port = n
	}

	browser, _ := m.GetSection(SectionIDBrowser)
	b := browser.(*BrowserSection)
	if v, ok := envString("DEFAULT_URL"); ok {
		b.DefaultURL = v
	}
	if n, ok, err := envInt("MAX_BROWSERS"); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if ok {
		b.MaxBrowsers = n
	}
	if n, ok, err := envInt("BROWSER_TIMEOUT"); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if ok {
		b.IdleTimeoutMs = n
	}

	streaming, _ := m.GetSection(SectionIDStreaming)
	st := streaming.(*StreamingSection)
	if n, ok, err := envInt("SCREENSHOT_QUALITY"); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if ok {
		st.ScreenshotQuality = n
	}
	if v, ok := envString("SCREENSHOT_TYPE"); ok {
		st.ScreenshotType = v
	}
	if n, ok, err := envInt("DEFAULT_FPS"); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if ok {
		st.DefaultFps = n
	}
	if n, ok, err := envInt("MIN_FPS"); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if ok {
		st.MinFps = n
	}
	if n, ok, err := envInt("MAX_FPS"); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if ok {
		st.MaxFps = n
	}
	if n, ok, err := envInt("KEYFRAME_INTERVAL"); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if ok {
		st.KeyframeInterval = n
	}

	security, _ := m.GetSection(SectionIDSecurity)
	sec := security.(*SecuritySection)
	if v, ok := envString("CORS_ORIGIN"); ok {
		sec.CORSOrigin = v
	}
	if n, ok, err := envInt("SESSION_TIMEOUT"); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if ok {
		sec.SessionTimeoutMs = n
	}

	return nil
}

// NewDefaultManager builds a Manager with all six sections registered and
// returns it without loading from disk; callers call LoadAll/ApplyEnv
// themselves so tests can control ordering.
func NewDefaultManager(store *FileStore) (*Manager, error) {
	m := NewManager(store)
	sections := []Section{
		NewServerSection(),
		NewBrowserSection(),
		NewStreamingSection(),
		NewSecuritySection(),
		NewFeaturesSection(),
		NewStorageSection(),
	}
	for _, s := range sections {
		if err := m.RegisterSection(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}
