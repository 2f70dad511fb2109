package socketrouter

import (
	"context"
	"encoding/json"

	"github.com/loool999/browser-test-2/internal/browser"
	"github.com/loool999/browser-test-2/internal/stream"
)

// handleInit implements the `init` message. It is idempotent: if the
// socket already owns a browser, the existing mapping is reused rather than
// a second one being created, per spec.md §4.5's ownership rule.
func (s *socket) handleInit(ctx context.Context, env envelope) {
	var p initPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.sendAck(env.Ack, initAck{Success: false, Error: "malformed init payload"})
			return
		}
	}

	s.mu.Lock()
	existing := s.browserID
	s.mu.Unlock()
	if existing != "" {
		s.sendAck(env.Ack, initAck{Success: true, BrowserID: existing})
		return
	}

	url := s.router.defaultURL
	if p.URL != nil && *p.URL != "" {
		url = *p.URL
	}
	width, height := 1280, 720
	if p.Width != nil {
		width = *p.Width
	}
	if p.Height != nil {
		height = *p.Height
	}

	browserID, err := s.router.pool.Create(ctx, url, width, height)
	if err != nil {
		s.sendAck(env.Ack, initAck{Success: false, Error: errMessage(err)})
		return
	}

	quality := p.Quality
	if quality == nil && s.router.screenshotQuality > 0 {
		q := s.router.screenshotQuality
		quality = &q
	}
	init := stream.InitParams{
		Fps:             p.Fps,
		Quality:         quality,
		Adaptive:        p.AdaptiveBitrate,
		ConnectionClass: stream.ConnectionClass(p.ConnectionClass),
		DeviceClass:     stream.DeviceClass(p.DeviceClass),
	}

	producer := stream.New(stream.Options{
		SocketID:         s.id,
		BrowserID:        browserID,
		Pool:             s.router.pool,
		Sink:             s,
		Clock:            s.router.clock,
		Logger:           s.router.logger,
		Metrics:          s.router.metrics,
		ScreenshotFormat: s.router.screenshotFormat,
		Init:             init,
		OnResize: func(ctx context.Context, w, h int) error {
			return s.router.pool.Resize(ctx, browserID, w, h)
		},
	})

	prodCtx, stop := context.WithCancel(context.Background())

	s.mu.Lock()
	s.browserID = browserID
	s.producer = producer
	s.prodStop = stop
	s.mu.Unlock()

	if s.sessionID != "" && s.router.sessions != nil {
		_ = s.router.sessions.SetBrowserID(s.sessionID, browserID)
	}

	// The init ack must reach s.send before the producer's first frame can
	// reach s.frames, per spec.md's "the immediate response to init is sent
	// before the first frame" ordering guarantee — so the ack is enqueued
	// here, on this goroutine, before the producer goroutine is even
	// started, rather than after.
	s.sendAck(env.Ack, initAck{Success: true, BrowserID: browserID})

	go producer.Run(prodCtx)
}

func (s *socket) handleNavigate(ctx context.Context, env envelope) {
	var p navigatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendAck(env.Ack, navigateAck{Success: false, Error: "malformed navigate payload"})
		return
	}

	browserID, ok := s.boundBrowser()
	if !ok {
		s.sendAck(env.Ack, navigateAck{Success: false, Error: "no browser bound to this socket"})
		return
	}

	if err := s.router.pool.Navigate(ctx, browserID, p.URL); err != nil {
		s.sendAck(env.Ack, navigateAck{Success: false, Error: errMessage(err)})
		return
	}
	currentURL, _ := s.router.pool.CurrentURL(browserID)
	s.sendAck(env.Ack, navigateAck{Success: true, CurrentURL: currentURL})
}

// handleAction implements `action`, including the special-cased
// `getCurrentUrl` verb that bypasses the pool's generic execute dispatch,
// per spec.md §4.5.
func (s *socket) handleAction(ctx context.Context, env envelope) {
	var p actionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendAck(env.Ack, actionAck{Success: false, Error: "malformed action payload"})
		return
	}

	browserID, ok := s.boundBrowser()
	if !ok {
		s.sendAck(env.Ack, actionAck{Success: false, Error: "no browser bound to this socket"})
		return
	}

	if p.Action == "getCurrentUrl" {
		url, err := s.router.pool.CurrentURL(browserID)
		if err != nil {
			s.sendAck(env.Ack, actionAck{Success: false, Error: errMessage(err)})
			return
		}
		s.sendAck(env.Ack, actionAck{Success: true, URL: url})
		return
	}

	params := decodeActionParams(p.Params)
	if err := s.router.pool.Execute(ctx, browserID, browser.ActionType(p.Action), params); err != nil {
		s.sendAck(env.Ack, actionAck{Success: false, Error: errMessage(err)})
		return
	}
	s.sendAck(env.Ack, actionAck{Success: true})
}

func decodeActionParams(raw map[string]any) browser.ActionParams {
	var p browser.ActionParams
	if raw == nil {
		return p
	}
	if v, ok := raw["x"].(float64); ok {
		p.X = v
	}
	if v, ok := raw["y"].(float64); ok {
		p.Y = v
	}
	if v, ok := raw["button"].(string); ok {
		p.Button = v
	}
	if v, ok := raw["text"].(string); ok {
		p.Text = v
	}
	if v, ok := raw["key"].(string); ok {
		p.Key = v
	}
	return p
}

func (s *socket) handleResize(ctx context.Context, env envelope) {
	var p resizePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendAck(env.Ack, resizeAck{Success: false, Error: "malformed resize payload"})
		return
	}

	browserID, ok := s.boundBrowser()
	if !ok {
		s.sendAck(env.Ack, resizeAck{Success: false, Error: "no browser bound to this socket"})
		return
	}

	if err := s.router.pool.Resize(ctx, browserID, p.Width, p.Height); err != nil {
		s.sendAck(env.Ack, resizeAck{Success: false, Error: errMessage(err)})
		return
	}
	s.sendAck(env.Ack, resizeAck{Success: true})
}

func (s *socket) handleStatus(env envelope) {
	browserID, _ := s.boundBrowser()

	var streamInfo map[string]any
	s.mu.Lock()
	producer := s.producer
	s.mu.Unlock()
	if producer != nil {
		snap := producer.Snapshot()
		streamInfo = map[string]any{
			"active":           snap.Active,
			"targetFps":        snap.TargetFps,
			"quality":          snap.Quality,
			"keyframeInterval": snap.KeyframeInterval,
			"frameCount":       snap.FrameCount,
			"bytesSent":        snap.BytesSent,
			"adaptive":         snap.Adaptive,
		}
	}

	s.sendAck(env.Ack, statusAck{
		Connected:      true,
		BrowserID:      browserID,
		ActiveBrowsers: s.router.pool.Count(),
		AllBrowserIDs:  s.router.pool.List(),
		Stream:         streamInfo,
	})
}

func (s *socket) handleStreamSettings(env envelope) {
	var p streamSettingsPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendAck(env.Ack, streamSettingsAck{Success: false, Error: "malformed stream-settings payload"})
		return
	}

	s.mu.Lock()
	producer := s.producer
	s.mu.Unlock()
	if producer == nil {
		s.sendAck(env.Ack, streamSettingsAck{Success: false, Error: "stream not initialized"})
		return
	}

	update := stream.SettingsUpdate{
		Fps:               p.Fps,
		Quality:           p.Quality,
		Width:             p.Width,
		Height:            p.Height,
		Adaptive:          p.AdaptiveBitrate,
		ConnectionQuality: stream.ConnectionClass(p.ConnectionQuality),
	}
	producer.UpdateSettings(update)

	snap := producer.Snapshot()
	settings := map[string]any{
		"fps":              snap.TargetFps,
		"quality":          snap.Quality,
		"keyframeInterval": snap.KeyframeInterval,
		"adaptive":         snap.Adaptive,
	}
	s.sendAck(env.Ack, streamSettingsAck{Success: true, Settings: settings})
	s.sendOut(msgStreamSettingsUpdated, map[string]any{"settings": settings})
}

func (s *socket) handleStreamControl(env envelope) {
	var p streamControlPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendAck(env.Ack, streamControlAck{Success: false})
		return
	}

	s.mu.Lock()
	producer := s.producer
	s.mu.Unlock()
	if producer != nil {
		producer.SetStreaming(p.Streaming)
	}
	s.sendAck(env.Ack, streamControlAck{Success: true, Streaming: p.Streaming})
}

func (s *socket) handleLatencyReport(env envelope) {
	var p latencyReportPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}

	s.mu.Lock()
	producer := s.producer
	s.mu.Unlock()
	if producer != nil {
		producer.ReportLatency(p.Latency)
	}
}

func (s *socket) handlePing(env envelope) {
	var p pingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	s.sendOut(msgPong, pongPayload{T0: p.T0})
}

func (s *socket) boundBrowser() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browserID, s.browserID != ""
}
