package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FieldCaller holds file:line in JSON output. slog's own "source" key is
// renamed so it cannot collide with FieldSource.
const FieldCaller = "caller"

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: jsonAttr,
	})
}

func jsonAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		if t, ok := attr.Value.Any().(time.Time); ok {
			return slog.String("ts", t.UTC().Format(time.RFC3339Nano))
		}
		return slog.Attr{Key: "ts", Value: attr.Value}
	case slog.LevelKey:
		return slog.String(slog.LevelKey, strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String(FieldCaller, filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
		}
	}
	return attr
}
