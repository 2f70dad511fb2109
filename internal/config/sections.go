package config

import "fmt"

// Section IDs, matching the "server/browser/streaming/security/features/
// storage" grouping spec.md §6 calls for in the persisted config file.
const (
	SectionIDServer    = "server"
	SectionIDBrowser   = "browser"
	SectionIDStreaming = "streaming"
	SectionIDSecurity  = "security"
	SectionIDFeatures  = "features"
	SectionIDStorage   = "storage"
)

// ServerSection holds listen-address settings.
type ServerSection struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

func NewServerSection() *ServerSection {
	return &ServerSection{Port: 8002, Host: "0.0.0.0"}
}

func (s *ServerSection) ID() string          { return SectionIDServer }
func (s *ServerSection) Title() string       { return "Server" }
func (s *ServerSection) Description() string { return "Listen address and port." }

func (s *ServerSection) Data() map[string]interface{} {
	return map[string]interface{}{"port": s.Port, "host": s.Host}
}

func (s *ServerSection) SetData(data map[string]interface{}) error {
	if v, ok := data["port"]; ok {
		port, err := toInt(v)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		s.Port = port
	}
	if v, ok := data["host"]; ok {
		host, ok := v.(string)
		if !ok {
			return fmt.Errorf("host: expected string, got %T", v)
		}
		s.Host = host
	}
	return nil
}

// BrowserSection holds Browser Pool admission/idle policy.
type BrowserSection struct {
	MaxBrowsers      int    `json:"max_browsers"`
	IdleTimeoutMs    int    `json:"idle_timeout_ms"`
	DefaultURL       string `json:"default_url"`
}

func NewBrowserSection() *BrowserSection {
	return &BrowserSection{
		MaxBrowsers:   5,
		IdleTimeoutMs: 900000,
		DefaultURL:    "https://www.google.com",
	}
}

func (s *BrowserSection) ID() string          { return SectionIDBrowser }
func (s *BrowserSection) Title() string       { return "Browser Pool" }
func (s *BrowserSection) Description() string { return "Pool capacity and idle-reap policy." }

func (s *BrowserSection) Data() map[string]interface{} {
	return map[string]interface{}{
		"max_browsers":    s.MaxBrowsers,
		"idle_timeout_ms": s.IdleTimeoutMs,
		"default_url":     s.DefaultURL,
	}
}

func (s *BrowserSection) SetData(data map[string]interface{}) error {
	if v, ok := data["max_browsers"]; ok {
		n, err := toInt(v)
		if err != nil {
			return fmt.Errorf("max_browsers: %w", err)
		}
		s.MaxBrowsers = n
	}
	if v, ok := data["idle_timeout_ms"]; ok {
		n, err := toInt(v)
		if err != nil {
			return fmt.Errorf("idle_timeout_ms: %w", err)
		}
		s.IdleTimeoutMs = n
	}
	if v, ok := data["default_url"]; ok {
		url, ok := v.(string)
		if !ok {
			return fmt.Errorf("default_url: expected string, got %T", v)
		}
		s.DefaultURL = url
	}
	return nil
}

// StreamingSection holds Stream Engine defaults.
type StreamingSection struct {
	ScreenshotQuality int    `json:"screenshot_quality"`
	ScreenshotType    string `json:"screenshot_type"`
	DefaultFps        int    `json:"default_fps"`
	MinFps            int    `json:"min_fps"`
	MaxFps            int    `json:"max_fps"`
	KeyframeInterval  int    `json:"keyframe_interval"`
}

func NewStreamingSection() *StreamingSection {
	return &StreamingSection{
		ScreenshotQuality: 80,
		ScreenshotType:    "jpeg",
		DefaultFps:        30,
		MinFps:            5,
		MaxFps:            60,
		KeyframeInterval:  10,
	}
}

func (s *StreamingSection) ID() string          { return SectionIDStreaming }
func (s *StreamingSection) Title() string       { return "Streaming" }
func (s *StreamingSection) Description() string { return "Default fps/quality/keyframe settings." }

func (s *StreamingSection) Data() map[string]interface{} {
	return map[string]interface{}{
		"screenshot_quality": s.ScreenshotQuality,
		"screenshot_type":    s.ScreenshotType,
		"default_fps":        s.DefaultFps,
		"min_fps":            s.MinFps,
		"max_fps":            s.MaxFps,
		"keyframe_interval":  s.KeyframeInterval,
	}
}

func (s *StreamingSection) SetData(data map[string]interface{}) error {
	ints := map[string]*int{
		"screenshot_quality": &s.ScreenshotQuality,
		"default_fps":        &s.DefaultFps,
		"min_fps":            &s.MinFps,
		"max_fps":            &s.MaxFps,
		"keyframe_interval":  &s.KeyframeInterval,
	}
	for key, dst := range ints {
		if v, ok := data[key]; ok {
			n, err := toInt(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v, ok := data["screenshot_type"]; ok {
		t, ok := v.(string)
		if !ok {
			return fmt.Errorf("screenshot_type: expected string, got %T", v)
		}
		s.ScreenshotType = t
	}
	return nil
}

// SecuritySection holds CORS and session-expiry policy. Rate-limiting and
// IP-block policy remain an external collaborator per spec.md §1; this
// section only owns what the core itself reads.
type SecuritySection struct {
	CORSOrigin       string `json:"cors_origin"`
	SessionTimeoutMs int    `json:"session_timeout_ms"`
}

func NewSecuritySection() *SecuritySection {
	return &SecuritySection{CORSOrigin: "*", SessionTimeoutMs: 7200000}
}

func (s *SecuritySection) ID() string          { return SectionIDSecurity }
func (s *SecuritySection) Title() string       { return "Security" }
func (s *SecuritySection) Description() string { return "CORS origin and session expiry." }

func (s *SecuritySection) Data() map[string]interface{} {
	return map[string]interface{}{
		"cors_origin":        s.CORSOrigin,
		"session_timeout_ms": s.SessionTimeoutMs,
	}
}

func (s *SecuritySection) SetData(data map[string]interface{}) error {
	if v, ok := data["cors_origin"]; ok {
		origin, ok := v.(string)
		if !ok {
			return fmt.Errorf("cors_origin: expected string, got %T", v)
		}
		s.CORSOrigin = origin
	}
	if v, ok := data["session_timeout_ms"]; ok {
		n, err := toInt(v)
		if err != nil {
			return fmt.Errorf("session_timeout_ms: %w", err)
		}
		s.SessionTimeoutMs = n
	}
	return nil
}

// FeaturesSection holds simple on/off toggles that don't warrant their own
// section.
type FeaturesSection struct {
	AdaptiveQuality    bool `json:"adaptive_quality"`
	HealthEndpoint     bool `json:"health_endpoint"`
}

func NewFeaturesSection() *FeaturesSection {
	return &FeaturesSection{AdaptiveQuality: true, HealthEndpoint: true}
}

func (s *FeaturesSection) ID() string          { return SectionIDFeatures }
func (s *FeaturesSection) Title() string       { return "Features" }
func (s *FeaturesSection) Description() string { return "Feature toggles." }

func (s *FeaturesSection) Data() map[string]interface{} {
	return map[string]interface{}{
		"adaptive_quality": s.AdaptiveQuality,
		"health_endpoint":  s.HealthEndpoint,
	}
}

func (s *FeaturesSection) SetData(data map[string]interface{}) error {
	if v, ok := data["adaptive_quality"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("adaptive_quality: expected bool, got %T", v)
		}
		s.AdaptiveQuality = b
	}
	if v, ok := data["health_endpoint"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("health_endpoint: expected bool, got %T", v)
		}
		s.HealthEndpoint = b
	}
	return nil
}

// StorageSection holds filesystem paths for the log directory and this
// section's own config file path (for -dump-config introspection).
type StorageSection struct {
	LogDir     string `json:"log_dir"`
	ConfigPath string `json:"config_path"`
}

func NewStorageSection() *StorageSection {
	return &StorageSection{LogDir: "./data/logs", ConfigPath: "./data/config.json"}
}

func (s *StorageSection) ID() string          { return SectionIDStorage }
func (s *StorageSection) Title() string       { return "Storage" }
func (s *StorageSection) Description() string { return "Log directory and config file path." }

func (s *StorageSection) Data() map[string]interface{} {
	return map[string]interface{}{"log_dir": s.LogDir, "config_path": s.ConfigPath}
}

func (s *StorageSection) SetData(data map[string]interface{}) error {
	if v, ok := data["log_dir"]; ok {
		dir, ok := v.(string)
		if !ok {
			return fmt.Errorf("log_dir: expected string, got %T", v)
		}
		s.LogDir = dir
	}
	if v, ok := data["config_path"]; ok {
		path, ok := v.(string)
		if !ok {
			return fmt.Errorf("config_path: expected string, got %T", v)
		}
		s.ConfigPath = path
	}
	return nil
}

// toInt accepts the numeric shapes JSON decoding and YAML decoding and
// direct Go literals can produce (float64, int, int64); any other type,
// strings included, is an error.
func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
