package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// multiHandler forwards log records to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// setupLogger builds a stderr text logger, fanned out to Seq when seqURL is
// set. The returned function flushes and closes the Seq handler.
func setupLogger(level slog.Level, seqURL string) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: level}
	console := slog.NewTextHandler(os.Stderr, opts)

	if seqURL == "" {
		return slog.New(console), func() {}
	}

	_, seqHandler := slogseq.NewLogger(
		seqURL,
		slogseq.WithBatchSize(50),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(opts),
	)
	if seqHandler == nil {
		return slog.New(console), func() {}
	}

	logger := slog.New(&multiHandler{handlers: []slog.Handler{console, seqHandler}})
	return logger, func() { seqHandler.Close() }
}
