package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LogLevel represents the logging level
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
	// FATAL level for fatal messages
	FATAL
)

const (
	strError = "ERROR"
	strFatal = "FATAL"
)

// LogField represents a structured logging field
type LogField struct {
	Key   string
	Value interface{}
}

// Field creates a structured logging field
func Field(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value}
}

// Logger provides structured logging throughout the application
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	ctx    context.Context
}

// packageLogLevels stores per-package level overrides. Keys are either exact
// logger names or "prefix.*" wildcard patterns.
var (
	packageLogLevels = make(map[string]LogLevel)
	packageLogMutex  sync.RWMutex
)

// SetPackageLogLevels replaces the per-package level overrides. Patterns like
// "index.*" match "index.store", "index.cache", and so on.
func SetPackageLogLevels(levels map[string]string) error {
	if levels == nil {
		return nil
	}

	packageLogMutex.Lock()
	defer packageLogMutex.Unlock()

	packageLogLevels = make(map[string]LogLevel)

	for pkg, levelStr := range levels {
		level, err := parseLevel(levelStr)
		if err != nil {
			return fmt.Errorf("invalid log level for package %q: %w", pkg, err)
		}
		packageLogLevels[pkg] = level
	}

	return nil
}

// GetPackageLogLevel returns the effective level for a logger name, preferring
// exact matches, then the longest matching wildcard pattern. Returns -1 when
// no override applies.
func GetPackageLogLevel(packageName string) LogLevel {
	packageLogMutex.RLock()
	defer packageLogMutex.RUnlock()

	if level, exists := packageLogLevels[packageName]; exists {
		return level
	}

	var patterns []string
	for pattern := range packageLogLevels {
		if matchesPattern(packageName, pattern) {
			patterns = append(patterns, pattern)
		}
	}
	// Longest pattern is the most specific.
	sort.Slice(patterns, func(i, j int) bool {
		return len(patterns[i]) > len(patterns[j])
	})

	if len(patterns) > 0 {
		return packageLogLevels[patterns[0]]
	}

	return LogLevel(-1)
}

func matchesPattern(packageName, pattern string) bool {
	if packageName == pattern {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(packageName, prefix+".")
	}
	return false
}

func parseLevel(levelStr string) (LogLevel, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case strError:
		return ERROR, nil
	case strFatal:
		return FATAL, nil
	default:
		return -1, fmt.Errorf("invalid level: %s (must be DEBUG, INFO, WARN, ERROR, or FATAL)", levelStr)
	}
}

// cloneFields copies the source field map; nil input yields an empty map.
func cloneFields(src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return make(map[string]interface{})
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
