package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(consoleTimeLayout)
}

// plainString renders v without quoting, for header fields.
func plainString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return rawValue(v)
}

// consoleValue renders a field value for the console. Byte counts (keys named
// "size" or ending in "_bytes") are shown in IEC units with the exact count.
func consoleValue(key string, v slog.Value) string {
	v = v.Resolve()
	if isByteKey(key) {
		switch v.Kind() {
		case slog.KindInt64:
			if n := v.Int64(); n >= 1024 {
				return fmt.Sprintf("%s (%d)", humanize.IBytes(uint64(n)), n)
			}
		case slog.KindUint64:
			if n := v.Uint64(); n >= 1024 {
				return fmt.Sprintf("%s (%d)", humanize.IBytes(n), n)
			}
		}
	}
	s := rawValue(v)
	switch v.Kind() {
	case slog.KindString, slog.KindAny:
		if quoteNeeded(s) {
			return strconv.Quote(s)
		}
	}
	return s
}

func isByteKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	return key == "size" || key == "bytes" || strings.HasSuffix(key, "_bytes")
}

func rawValue(v slog.Value) string {
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
		return formatTimestamp(v.Time())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteNeeded(s string) bool {
	return s == "" || strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
}
