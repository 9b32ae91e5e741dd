package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/edwarddev/tutorcore/core/config"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
)

// Setup installs the process-wide slog handler. Production with OTel
// configured ships logs through the otelslog bridge; production
// without it emits enriched JSON to stdout; development writes an
// enriched text stream to stdout and a dated file under logs/.
func Setup(cfg config.Config) {
	slog.SetDefault(slog.New(buildHandler(cfg)))
}

func buildHandler(cfg config.Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
	}

	switch {
	case cfg.IsProduction() && cfg.OTel.Enabled():
		return otelslog.NewHandler(
			cfg.OTel.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		)
	case cfg.IsProduction():
		return newEnrichHandler(slog.NewJSONHandler(os.Stdout, opts))
	default:
		return newEnrichHandler(slog.NewTextHandler(devWriter(), opts))
	}
}

// devWriter tees development logs to stdout and a dated file, falling
// back to stdout alone when the logs directory cannot be used.
func devWriter() io.Writer {
	const logsDir = "logs"
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to create logs directory: %v\n", err)
		return os.Stdout
	}

	name := filepath.Join(logsDir, fmt.Sprintf("tutorcore-%s.log", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to open log file: %v\n", err)
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, f)
}
