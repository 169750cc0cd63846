// Package logging provides structured logging for the triage application.
//
// The logger supports five levels (DEBUG, INFO, WARN, ERROR, FATAL), named
// component loggers, and structured key-value fields. Initialize it once at
// startup:
//
//	logging.Initialize("info")
//
// Then obtain a named logger per component:
//
//	logger := logging.GetLogger("retrieve")
//	logger.Info("index loaded with %d fragments", n)
//
// Structured fields are preferred over format verbs for anything that will be
// searched later:
//
//	logger.InfoWithFields("analysis complete",
//	    logging.Field("analysis_id", id),
//	    logging.Field("duration_ms", elapsed.Milliseconds()),
//	)
//
// WithField/WithFields/WithContext return new Logger instances with persistent
// fields, so loggers are immutable and safe to share across goroutines.
// ERROR and FATAL messages go to stderr, everything else to stdout. Per-package
// level overrides (including "pkg.*" wildcards) can be supplied to Initialize
// for targeted debugging. The LOG_TIMESTAMP environment variable overrides
// timestamps for deterministic test output.
package logging

import (
	"context"
	"os"
	"sync"
)

var (
	globalLogger *Logger
	initOnce     sync.Once
	// exitFunc is called by Fatal. Overridable for tests.
	exitFunc = os.Exit
)

// Initialize sets up the global logger with the given default level and
// optional per-package level overrides, e.g. {"index.*": "debug"}.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalLogger = &Logger{
		level: level,
		name:  "triage",
	}

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}

	return nil
}

// GetLogger returns a logger with the specified name. The global logger is
// lazily initialized at INFO on first use.
func GetLogger(name string) *Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			_ = Initialize("info")
		}
	})
	return &Logger{
		level:  globalLogger.level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

// shouldLog considers per-package overrides before the logger's own level.
func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf("DEBUG", msg, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf("INFO", msg, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf("WARN", msg, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(strError, msg, args...)
	}
}

// Fatal logs a fatal message and exits the program with code 1
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(strFatal, msg, args...)
		exitFunc(1)
	}
}

// ErrorWithErr logs an error message with an error object appended.
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.shouldLog(ERROR) {
		args = append(args, err)
		l.logf(strError, msg+" - %v", args...)
	}
}

// WithName returns a new logger with a custom name
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		level:  l.level,
		name:   name,
		fields: make(map[string]interface{}),
		ctx:    l.ctx,
	}
}

// WithField returns a new logger with the field added to its persistent set.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	newLogger := &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
	newLogger.fields[key] = value
	return newLogger
}

// WithFields returns a new logger with all given fields added.
func (l *Logger) WithFields(fields ...LogField) *Logger {
	newLogger := &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
	for _, f := range fields {
		newLogger.fields[f.Key] = f.Value
	}
	return newLogger
}

// WithContext returns a new logger that extracts trace_id and span_id from
// the context, if present, into every message.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    ctx,
	}
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields("DEBUG", msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields("INFO", msg, fields...)
	}
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields("WARN", msg, fields...)
	}
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields(strError, msg, fields...)
	}
}

// FatalWithFields logs a fatal message with structured fields and exits.
func (l *Logger) FatalWithFields(msg string, fields ...LogField) {
	if l.shouldLog(FATAL) {
		l.logWithFields(strFatal, msg, fields...)
		exitFunc(1)
	}
}

// logWithFields merges context fields, persistent fields, and per-call fields.
// Priority order (last wins): context < persistent < per-call.
func (l *Logger) logWithFields(level, msg string, fields ...LogField) {
	contextFields := extractContextFields(l.ctx)

	var merged map[string]interface{}
	if contextFields != nil || len(l.fields) > 0 || len(fields) > 0 {
		merged = make(map[string]interface{})
		for k, v := range contextFields {
			merged[k] = v
		}
		for k, v := range l.fields {
			merged[k] = v
		}
		for _, f := range fields {
			merged[f.Key] = f.Value
		}
	}

	l.writeLog(level, msg, merged)
}
