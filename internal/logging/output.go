package logging

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"
)

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// TraceIDKey returns the context key under which a trace ID is stored.
func TraceIDKey() interface{} {
	return traceIDKey
}

// SpanIDKey returns the context key under which a span ID is stored.
func SpanIDKey() interface{} {
	return spanIDKey
}

// extractContextFields pulls trace_id and span_id out of the context.
// Returns nil when the context is nil or carries neither.
func extractContextFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	fields := make(map[string]interface{})
	if traceID := ctx.Value(traceIDKey); traceID != nil {
		fields["trace_id"] = traceID
	}
	if spanID := ctx.Value(spanIDKey); spanID != nil {
		fields["span_id"] = spanID
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// writeLog formats the message with optional fields and routes it:
// ERROR/FATAL to stderr, everything else to stdout.
func (l *Logger) writeLog(level, msg string, fields map[string]interface{}) {
	logMsg := fmt.Sprintf("[%s] [%s] %s: %s", GetTimestamp(), level, l.name, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logMsg += " |"
		for _, k := range keys {
			logMsg += fmt.Sprintf(" %s=%v", k, fields[k])
		}
	}

	if level == strError || level == strFatal {
		fmt.Fprintf(os.Stderr, "%s\n", logMsg)
	} else {
		log.Println(logMsg)
	}
}

func (l *Logger) logf(level, msg string, args ...interface{}) {
	formattedMsg := fmt.Sprintf(msg, args...)

	contextFields := extractContextFields(l.ctx)
	var merged map[string]interface{}
	if contextFields != nil || len(l.fields) > 0 {
		merged = make(map[string]interface{})
		for k, v := range contextFields {
			merged[k] = v
		}
		for k, v := range l.fields {
			merged[k] = v
		}
	}

	l.writeLog(level, formattedMsg, merged)
}

// GetTimestamp returns an RFC3339 timestamp. The LOG_TIMESTAMP env var
// overrides it for deterministic test output.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}
