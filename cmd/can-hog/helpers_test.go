package main

import (
	"log/slog"

	"github.com/kstaniek/go-can-hog/internal/logging"
)

func testLogger() *slog.Logger { return logging.Discard() }
