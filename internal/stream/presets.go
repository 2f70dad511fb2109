package stream

// Preset is the (fps, quality, keyframeInterval) triple derived from a
// client's connection/device class, before any client-supplied override and
// before clamping, per spec.md §4.3's "Initial selection".
type Preset struct {
	Fps              int
	Quality          int
	KeyframeInterval int
}

// keyframeIntervalByConnection is literal from spec.md §4.3: "KeyframeInterval
// defaults by connection class (slow=15, medium=10, fast=8)".
var keyframeIntervalByConnection = map[ConnectionClass]int{
	ConnectionSlow:   15,
	ConnectionMedium: 10,
	ConnectionFast:   8,
}

// baseByConnection gives the starting fps/quality for each connection
// class; deviceModifier then adjusts for the rendering surface.
var baseByConnection = map[ConnectionClass]Preset{
	ConnectionSlow:   {Fps: 15, Quality: 50},
	ConnectionMedium: {Fps: 30, Quality: 75},
	ConnectionFast:   {Fps: 45, Quality: 90},
}

type deviceModifier struct {
	fpsScale   float64
	qualityAdj int
}

var deviceModifiers = map[DeviceClass]deviceModifier{
	DeviceDesktop: {fpsScale: 1.0, qualityAdj: 0},
	DeviceTablet:  {fpsScale: 0.85, qualityAdj: -5},
	DeviceMobile:  {fpsScale: 0.6, qualityAdj: -10},
	DeviceTV:      {fpsScale: 1.0, qualityAdj: 5},
}

// PresetFor derives initial (fps, quality, keyframeInterval) from a
// connectionClass x deviceClass pair, falling back to medium/desktop for
// unrecognised values rather than failing. The result is not yet clamped
// against [MinFps,MaxFps]/[MinQuality,MaxQuality] — callers clamp after
// applying client overrides.
func PresetFor(conn ConnectionClass, device DeviceClass) Preset {
	base, ok := baseByConnection[conn]
	if !ok {
		base = baseByConnection[ConnectionMedium]
		conn = ConnectionMedium
	}
	mod, ok := deviceModifiers[device]
	if !ok {
		mod = deviceModifiers[DeviceDesktop]
	}

	keyframeInterval, ok := keyframeIntervalByConnection[conn]
	if !ok {
		keyframeInterval = keyframeIntervalByConnection[ConnectionMedium]
	}

	return Preset{
		Fps:              int(float64(base.Fps) * mod.fpsScale),
		Quality:          base.Quality + mod.qualityAdj,
		KeyframeInterval: keyframeInterval,
	}
}
