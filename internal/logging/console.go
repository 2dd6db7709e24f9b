package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one human-readable line per record. Component, run
// and topic move into the prefix:
//
//	2026-01-02T15:04:05Z INFO orchestrator [run 1a2b3c4d] <Sleep>: message key=value
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	preset    []field
	groups    []string
	addSource bool
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = appendFields(append([]field(nil), h.preset...), h.groups, attrs)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.preset...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFields(fields, h.groups, []slog.Attr{attr})
		return true
	})

	var component, runID, topic string
	rest := fields[:0]
	for _, f := range fields {
		switch {
		case f.key == FieldComponent && component == "":
			component = plain(f.value)
		case f.key == FieldRunID && runID == "":
			runID = plain(f.value)
		case f.key == FieldTopic && topic == "":
			topic = plain(f.value)
		default:
			rest = append(rest, f)
		}
	}

	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	var line strings.Builder
	line.WriteString(when.UTC().Format(time.RFC3339))
	line.WriteByte(' ')
	line.WriteString(levelLabel(record.Level))

	var prefix []string
	if component != "" {
		prefix = append(prefix, component)
	}
	if runID != "" {
		prefix = append(prefix, "[run "+shortRunID(runID)+"]")
	}
	if topic != "" {
		prefix = append(prefix, "<"+topic+">")
	}
	line.WriteByte(' ')
	if len(prefix) > 0 {
		line.WriteString(strings.Join(prefix, " "))
		line.WriteString(": ")
	}

	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	line.WriteString(msg)

	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&line, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range rest {
		line.WriteByte(' ')
		line.WriteString(f.key)
		line.WriteByte('=')
		line.WriteString(render(f.value))
	}
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}

// appendFields flattens groups into dotted keys.
func appendFields(dst []field, groups []string, attrs []slog.Attr) []field {
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			inner := groups
			if attr.Key != "" {
				inner = append(append([]string(nil), groups...), attr.Key)
			}
			dst = appendFields(dst, inner, value.Group())
			continue
		}
		if attr.Key == "" {
			continue
		}
		key := attr.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		dst = append(dst, field{key: key, value: value})
	}
	return dst
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plain(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return render(v)
}

func render(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
