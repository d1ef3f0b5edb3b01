package cmd

import (
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// NewTraceHandler builds the engineering trace log's handler: a terse
// stderr text handler always, fanned out with slog-multi to a second JSON
// handler (stdout, one record per line) when verbose is requested, so a
// caller piping gbtk's output can keep a machine-readable trace of every
// pass (lexing, parsing, section building, placement, emission) without
// losing the human-readable stream.
func NewTraceHandler(verbose bool) slog.Handler {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if !verbose {
		return text
	}
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slogmulti.Fanout(text, jsonHandler)
}
