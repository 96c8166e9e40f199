package inkpost

import (
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

func logColors(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	if !isatty.IsTerminal(f.Fd()) {
		return false
	}

	return os.Getenv("TERM") != "dumb"
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func GetSlogHandler(debug bool, out io.Writer) slog.Handler {
	return tint.NewHandler(out, &tint.Options{
		AddSource: true,
		Level:     logLevel(debug),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if _, ok := attr.Value.Any().(error); attr.Key == "err" || ok {
				return tint.Attr(9, attr)
			}
			return attr
		},
		TimeFormat: time.RFC3339,
		NoColor:    !logColors(out),
	})
}

// NewLogger builds the process logger. Records always go to stderr; when logDir
// is not empty they are also written as JSON to a rotated inkpost.log file.
func NewLogger(debug bool, logDir string) (*slog.Logger, error) {
	console := GetSlogHandler(debug, os.Stderr)
	if logDir == "" {
		return slog.New(console), nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	file := slog.NewJSONHandler(&lumberjack.Logger{
		Filename:   path.Join(logDir, "inkpost.log"),
		MaxSize:    50,
		MaxBackups: 5,
		Compress:   true,
	}, &slog.HandlerOptions{Level: logLevel(debug)})

	return slog.New(slogmulti.Fanout(console, file)), nil
}
