package main

import (
	"log/slog"

	"github.com/kstaniek/go-can-hog/internal/hub"
)

func initHub(cfg *appConfig, l *slog.Logger) *hub.Hub {
	h := hub.New()
	h.OutBufSize = cfg.shellBuffer
	p, err := hub.ParsePolicy(cfg.shellPolicy)
	if err != nil {
		l.Warn("unknown_shell_policy", "policy", cfg.shellPolicy, "used", "drop")
	}
	h.Policy = p
	l.Info("hub_config", "policy", cfg.shellPolicy, "buffer", h.OutBufSize)
	return h
}
