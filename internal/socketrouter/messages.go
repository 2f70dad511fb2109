// Package socketrouter implements the Socket Router: it upgrades an inbound
// HTTP connection to a websocket, decodes the small `{name,payload,ack}`
// control protocol from spec.md §4.5, and dispatches each message to the
// Browser Pool, Session Binder, and per-socket Stream Engine producer.
package socketrouter

import "encoding/json"

// envelope is the wire shape of every inbound and outbound message, per
// spec.md §4.5.
type envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     string          `json:"ack,omitempty"`
}

// outbound message names, per spec.md §4.5's "out" rows.
const (
	msgFrame                 = "frame"
	msgPong                  = "pong"
	msgStreamSettingsUpdated = "stream-settings-updated"
)

// inbound message names, per spec.md §4.5's "in" rows.
const (
	msgInit           = "init"
	msgNavigate       = "navigate"
	msgAction         = "action"
	msgResize         = "resize"
	msgStatus         = "status"
	msgStreamSettings = "stream-settings"
	msgStreamControl  = "stream-control"
	msgLatencyReport  = "latency-report"
	msgPing           = "ping"
)

type initPayload struct {
	URL             *string `json:"url,omitempty"`
	Width           *int    `json:"width,omitempty"`
	Height          *int    `json:"height,omitempty"`
	Fps             *int    `json:"fps,omitempty"`
	Quality         *int    `json:"quality,omitempty"`
	AdaptiveBitrate *bool   `json:"adaptiveBitrate,omitempty"`
	ConnectionClass string  `json:"connectionClass,omitempty"`
	DeviceClass     string  `json:"deviceClass,omitempty"`
}

type initAck struct {
	Success   bool   `json:"success"`
	BrowserID string `json:"browserId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type navigatePayload struct {
	URL string `json:"url"`
}

type navigateAck struct {
	Success    bool   `json:"success"`
	CurrentURL string `json:"currentUrl,omitempty"`
	Error      string `json:"error,omitempty"`
}

type actionPayload struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

type actionAck struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

type resizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type resizeAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type statusAck struct {
	Connected      bool           `json:"connected"`
	BrowserID      string         `json:"browserId,omitempty"`
	ActiveBrowsers int            `json:"activeBrowsers"`
	AllBrowserIDs  []string       `json:"allBrowserIds"`
	Stream         map[string]any `json:"stream,omitempty"`
}

type streamSettingsPayload struct {
	Fps               *int   `json:"fps,omitempty"`
	Quality           *int   `json:"quality,omitempty"`
	Width             *int   `json:"width,omitempty"`
	Height            *int   `json:"height,omitempty"`
	AdaptiveBitrate   *bool  `json:"adaptiveBitrate,omitempty"`
	ConnectionQuality string `json:"connectionQuality,omitempty"`
}

type streamSettingsAck struct {
	Success  bool           `json:"success"`
	Settings map[string]any `json:"settings,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type streamControlPayload struct {
	Streaming bool `json:"streaming"`
}

type streamControlAck struct {
	Success   bool `json:"success"`
	Streaming bool `json:"streaming"`
}

type latencyReportPayload struct {
	Latency float64 `json:"latency"`
}

type pingPayload struct {
	T0 int64 `json:"t0"`
}

type pongPayload struct {
	T0 int64 `json:"t0"`
}

type failureAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
