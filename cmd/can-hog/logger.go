package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/go-can-hog/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, logging.ParseLevel(level), os.Stderr).With("app", "can-hog")
	logging.Set(l)
	return l
}
