package observability

import (
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"
	"strings"
)

// NewLogger builds the daemon's structured logger from a §6-style
// destination and level string.
//
// dest is one of "stderr:", "stdout:", "syslog:[facility]" (facility one of
// daemon, user, local0..local7, default daemon), or any other string, which
// is treated as a file path opened for append.
//
// level accepts, in decreasing severity: emerg, alert, crit, err, warning,
// notice, info, debug, and the common synonyms handled by parseLevel.
// NewLogger's second return value closes the underlying destination (the
// syslog connection or log file); callers should defer it. It is a no-op
// for stderr/stdout.
func NewLogger(dest, level string) (*slog.Logger, func() error, error) {
	w, closeFn, err := openDest(dest)
	if err != nil {
		return nil, nil, fmt.Errorf("op=observability.NewLogger: %w", err)
	}

	lvl, err := parseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("op=observability.NewLogger: %w", err)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(h).With(slog.String("service", ServiceName))
	return logger, closeFn, nil
}

// openDest resolves dest into a writer per the §6 destination grammar.
func openDest(dest string) (io.Writer, func() error, error) {
	switch {
	case dest == "" || dest == "stderr:":
		return os.Stderr, func() error { return nil }, nil
	case dest == "stdout:":
		return os.Stdout, func() error { return nil }, nil
	case strings.HasPrefix(dest, "syslog:"):
		facility, err := parseFacility(strings.TrimPrefix(dest, "syslog:"))
		if err != nil {
			return nil, nil, err
		}
		w, err := syslog.New(facility|syslog.LOG_INFO, "rteval-parserd")
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to syslog: %w", err)
		}
		return w, w.Close, nil
	default:
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", dest, err)
		}
		return f, f.Close, nil
	}
}

var facilities = map[string]syslog.Priority{
	"daemon": syslog.LOG_DAEMON,
	"user":   syslog.LOG_USER,
	"local0": syslog.LOG_LOCAL0,
	"local1": syslog.LOG_LOCAL1,
	"local2": syslog.LOG_LOCAL2,
	"local3": syslog.LOG_LOCAL3,
	"local4": syslog.LOG_LOCAL4,
	"local5": syslog.LOG_LOCAL5,
	"local6": syslog.LOG_LOCAL6,
	"local7": syslog.LOG_LOCAL7,
}

func parseFacility(name string) (syslog.Priority, error) {
	if name == "" {
		return syslog.LOG_DAEMON, nil
	}
	f, ok := facilities[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown syslog facility %q", name)
	}
	return f, nil
}

// parseLevel maps a §6 severity name, or one of its common synonyms, to the
// nearest slog.Level. slog has no native concept of syslog's emerg/alert/
// crit/notice distinctions, so all of emerg/alert/crit/err collapse onto
// LevelError, and notice collapses onto LevelInfo, matching the coarser
// four-level granularity slog actually enforces at filtering time.
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "emerg", "emergency", "panic":
		return slog.LevelError, nil
	case "alert":
		return slog.LevelError, nil
	case "crit", "critical":
		return slog.LevelError, nil
	case "err", "error":
		return slog.LevelError, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "notice":
		return slog.LevelInfo, nil
	case "", "info", "informational":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
