package batch

import (
	"log/slog"
)

// Reporter is told about every finished URL. A returned error is logged and
// otherwise ignored.
type Reporter interface {
	Completed(done, total int, url string) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(done, total int, url string) error

func (f ReporterFunc) Completed(done, total int, url string) error {
	return f(done, total, url)
}

type NopReporter struct{}

func (NopReporter) Completed(int, int, string) error { return nil }

// LogReporter writes one progress line per finished URL.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger.With("component", "progress")}
}

func (r *LogReporter) Completed(done, total int, url string) error {
	r.logger.Info("processing urls", "done", done, "total", total, "url", url)
	return nil
}
