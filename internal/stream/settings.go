package stream

// InitParams is the client-supplied subset of `init`'s payload that seeds a
// StreamState, per spec.md §4.5's message table.
type InitParams struct {
	Fps             *int
	Quality         *int
	Width           *int
	Height          *int
	Adaptive        *bool
	ConnectionClass ConnectionClass
	DeviceClass     DeviceClass
}

// state is the mutable per-client StreamState from spec.md §3. Owned
// exclusively by the producer goroutine after construction; nothing outside
// package stream's Producer mutates it directly, per Design Notes §9's
// single-writer discipline.
type state struct {
	active           bool
	targetFps        int
	quality          int
	keyframeInterval int
	keyframeCounter  int
	lastFrameAt      int64 // producer-clock ms, 0 before the first frame
	lastTimestampMs  int64
	frameCount       int64
	bytesSent        int64
	adaptive         bool
	connectionClass  ConnectionClass
	deviceClass      DeviceClass
	screenshotFormat string
	terminated       bool
}

// newState applies the preset table, then client overrides, then clamps,
// per spec.md §4.3's "Initial selection".
func newState(p InitParams, screenshotFormat string) state {
	conn := p.ConnectionClass
	if conn == "" {
		conn = ConnectionMedium
	}
	device := p.DeviceClass
	if device == "" {
		device = DeviceDesktop
	}
	preset := PresetFor(conn, device)

	fps := preset.Fps
	if p.Fps != nil {
		fps = *p.Fps
	}
	quality := preset.Quality
	if p.Quality != nil {
		quality = *p.Quality
	}
	adaptive := true
	if p.Adaptive != nil {
		adaptive = *p.Adaptive
	}
	if screenshotFormat == "" {
		screenshotFormat = "jpeg"
	}

	return state{
		active:           true,
		targetFps:        clampInt(fps, MinFps, MaxFps),
		quality:          clampInt(quality, MinQuality, MaxQuality),
		keyframeInterval: maxInt(1, preset.KeyframeInterval),
		keyframeCounter:  0,
		adaptive:         adaptive,
		connectionClass:  conn,
		deviceClass:      device,
		screenshotFormat: screenshotFormat,
	}
}

// SettingsUpdate carries a `stream-settings` message's validated fields.
// Only non-nil fields are changed; unset fields keep their current value.
type SettingsUpdate struct {
	Fps               *int
	Quality           *int
	Width             *int
	Height            *int
	Adaptive          *bool
	ConnectionQuality ConnectionClass
}

// Snapshot is the read-only view of state exposed to callers (the `status`
// handler, tests) without granting write access to the producer's owned
// fields.
type Snapshot struct {
	Active           bool
	TargetFps        int
	Quality          int
	KeyframeInterval int
	KeyframeCounter  int
	FrameCount       int64
	BytesSent        int64
	Adaptive         bool
	ConnectionClass  ConnectionClass
	DeviceClass      DeviceClass
}

func (s state) snapshot() Snapshot {
	return Snapshot{
		Active:           s.active,
		TargetFps:        s.targetFps,
		Quality:          s.quality,
		KeyframeInterval: s.keyframeInterval,
		KeyframeCounter:  s.keyframeCounter,
		FrameCount:       s.frameCount,
		BytesSent:        s.bytesSent,
		Adaptive:         s.adaptive,
		ConnectionClass:  s.connectionClass,
		DeviceClass:      s.deviceClass,
	}
}
