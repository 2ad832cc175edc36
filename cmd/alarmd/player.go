package main

import "log/slog"

// logPlayer is a ring.Player that reports playback transitions through the
// structured log. A deployment with real audio hardware substitutes its own
// implementation.
type logPlayer struct {
	logger *slog.Logger
}

func newLogPlayer(logger *slog.Logger) *logPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &logPlayer{logger: logger}
}

func (p *logPlayer) Play(soundID string) {
	p.logger.Info("playback started", "sound_id", soundID)
}

func (p *logPlayer) Stop() {
	p.logger.Info("playback stopped")
}
