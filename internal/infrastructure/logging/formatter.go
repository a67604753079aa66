package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Formatter renders a record into the bytes written to a handler's
// destination. Implementations must be safe for concurrent use.
type Formatter interface {
	Format(name string, r slog.Record) []byte
}

// DefaultFormatter renders "<time> - <name> - <LEVEL> - <message> k=v ...".
type DefaultFormatter struct {
	datefmt string
	stamp   *strftime.Strftime
}

// defaultFormatter is shared by registries and handlers until configured.
var defaultFormatter = mustDefaultFormatter()

func mustDefaultFormatter() *DefaultFormatter {
	f, err := NewDefaultFormatter(DefaultDatefmt)
	if err != nil {
		panic(err)
	}
	return f
}

// NewDefaultFormatter builds a DefaultFormatter from a strftime-style datefmt.
// An empty datefmt falls back to DefaultDatefmt.
func NewDefaultFormatter(datefmt string) (*DefaultFormatter, error) {
	if datefmt == "" {
		datefmt = DefaultDatefmt
	}
	stamp, err := CompileDatefmt(datefmt)
	if err != nil {
		return nil, err
	}
	return &DefaultFormatter{datefmt: datefmt, stamp: stamp}, nil
}

// Datefmt returns the strftime pattern timestamps are rendered with.
func (f *DefaultFormatter) Datefmt() string {
	return f.datefmt
}

// Format implements Formatter.
func (f *DefaultFormatter) Format(name string, r slog.Record) []byte {
	var buf bytes.Buffer
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(f.stamp.FormatString(ts))
	buf.WriteString(" - ")
	buf.WriteString(name)
	buf.WriteString(" - ")
	buf.WriteString(levelName(r.Level))
	buf.WriteString(" - ")
	buf.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, "", a)
		return true
	})
	buf.WriteByte('\n')
	return buf.Bytes()
}

// BlankFormatter renders the message only.
type BlankFormatter struct{}

// Format implements Formatter.
func (BlankFormatter) Format(_ string, r slog.Record) []byte {
	return []byte(r.Message + "\n")
}

// JSONFormatter renders one JSON object per record.
type JSONFormatter struct{}

// Format implements Formatter.
func (JSONFormatter) Format(name string, r slog.Record) []byte {
	entry := map[string]any{
		"time":  r.Time.UTC().Format(time.RFC3339Nano),
		"name":  name,
		"level": levelName(r.Level),
		"msg":   r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		collectAttr(entry, "", a)
		return true
	})

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(strconv.Quote(fmt.Sprintf("unencodable log record: %v", err)))
	}
	return append(data, '\n')
}

// FormatterByName returns the formatter registered under name:
// "default" (or empty), "blank" or "json".
func FormatterByName(name, datefmt string) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "default":
		f, err := NewDefaultFormatter(datefmt)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "blank":
		return BlankFormatter{}, nil
	case "json":
		return JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormatter, name)
	}
}

// levelName returns the upper-case level label, keeping offsets such as
// "INFO+2" for non-standard levels.
func levelName(l slog.Level) string {
	return l.String()
}

// writeAttr appends " key=value", flattening groups into dotted keys.
func writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(buf, key, ga)
		}
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(key)
	buf.WriteByte('=')
	v := a.Value.String()
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		v = strconv.Quote(v)
	}
	buf.WriteString(v)
}

// collectAttr stores an attribute into entry, flattening groups.
func collectAttr(entry map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			collectAttr(entry, key, ga)
		}
		return
	}
	switch a.Value.Kind() {
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			entry[key] = err.Error()
			return
		}
		entry[key] = a.Value.Any()
	default:
		entry[key] = a.Value.Any()
	}
}
