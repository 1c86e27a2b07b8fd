package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger writes leveled lines with a mode tag and key/value fields.
// Derived loggers (WithField, WithMode) share the output of their parent.
type Logger struct {
	level  LogLevel
	logger *log.Logger
	fields map[string]interface{}
	mode   string
	json   bool
}

type Config struct {
	Level  LogLevel
	Output io.Writer
	Format string // "json" or "text" (default)
	Mode   string // "serve", "print", "watch" or empty
}

func New() *Logger {
	return NewWithConfig(Config{
		Level:  INFO,
		Output: os.Stdout,
		Format: "text",
	})
}

func NewWithConfig(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	return &Logger{
		level:  config.Level,
		logger: log.New(config.Output, "", 0),
		fields: make(map[string]interface{}),
		mode:   config.Mode,
		json:   strings.EqualFold(config.Format, "json"),
	}
}

// SetMode sets the mode tag printed on every line
func (l *Logger) SetMode(mode string) {
	l.mode = mode
}

func (l *Logger) GetMode() string {
	return l.mode
}

// SetOutput redirects this logger and every logger derived from it.
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

// SetFormat switches between "text" and "json" lines.
func (l *Logger) SetFormat(format string) {
	l.json = strings.EqualFold(format, "json")
}

func (l *Logger) clone(mode string) *Logger {
	newLogger := &Logger{
		level:  l.level,
		logger: l.logger,
		fields: make(map[string]interface{}, len(l.fields)),
		mode:   mode,
		json:   l.json,
	}
	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	return newLogger
}

func (l *Logger) WithFields(keyVals ...interface{}) *Logger {
	newLogger := l.clone(l.mode)

	for i := 0; i+1 < len(keyVals); i += 2 {
		key := fmt.Sprintf("%v", keyVals[i])
		newLogger.fields[key] = keyVals[i+1]
	}

	return newLogger
}

// WithField returns a logger carrying one more field, e.g. component=rdpdr.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(key, value)
}

// WithMode returns a logger with the same fields and a different mode tag.
func (l *Logger) WithMode(mode string) *Logger {
	return l.clone(mode)
}

func (l *Logger) Debug(msg string, keyVals ...interface{}) {
	l.log(DEBUG, msg, keyVals...)
}

func (l *Logger) Info(msg string, kv ...interface{}) {
	l.log(INFO, msg, kv...)
}

func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.log(WARN, msg, kv...)
}

func (l *Logger) Error(msg string, kv ...interface{}) {
	l.log(ERROR, msg, kv...)
}

func (l *Logger) Fatal(msg string, kv ...interface{}) {
	l.log(ERROR, msg, kv...)
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, msg string, kv ...interface{}) {
	if level < l.level {
		return
	}

	timestamp := time.Now().Format(timestampLayout)

	allFields := make(map[string]interface{}, len(l.fields)+len(kv)/2)
	for k, v := range l.fields {
		allFields[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		allFields[key] = kv[i+1]
	}

	if l.json {
		l.logger.Print(l.formatJSONLine(timestamp, level, msg, allFields))
		return
	}
	l.logger.Print(l.formatLogLine(timestamp, level, msg, allFields))
}

func (l *Logger) formatLogLine(timestamp string, level LogLevel, msg string, fields map[string]interface{}) string {
	parts := []string{
		fmt.Sprintf("[%s]", timestamp),
		fmt.Sprintf("[%s]", level.String()),
	}

	if l.mode != "" {
		parts = append(parts, fmt.Sprintf("[%s]", l.mode))
	}

	parts = append(parts, msg)

	if len(fields) > 0 {
		fieldParts := make([]string, 0, len(fields))
		for _, key := range sortedKeys(fields) {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%v", key, formatValue(fields[key])))
		}
		parts = append(parts, fmt.Sprintf("| %s", strings.Join(fieldParts, " ")))
	}

	return strings.Join(parts, " ")
}

func (l *Logger) formatJSONLine(timestamp string, level LogLevel, msg string, fields map[string]interface{}) string {
	entry := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		switch val := v.(type) {
		case error:
			entry[k] = val.Error()
		case time.Duration:
			entry[k] = val.String()
		default:
			entry[k] = val
		}
	}
	entry["ts"] = timestamp
	entry["level"] = level.String()
	entry["msg"] = msg
	if l.mode != "" {
		entry["mode"] = l.mode
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return l.formatLogLine(timestamp, level, msg, fields)
	}
	return string(b)
}

func sortedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		if strings.Contains(v, " ") {
			return fmt.Sprintf(`"%s"`, v)
		}
		return v
	case error:
		return fmt.Sprintf(`"%s"`, v.Error())
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format("2006-01-02T15:04:05Z07:00")
	case []byte:
		return fmt.Sprintf("%dB", len(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

func (l *Logger) GetLevel() LogLevel {
	return l.level
}

func (l *Logger) IsDebugEnabled() bool {
	return l.level <= DEBUG
}

func (l *Logger) IsInfoEnabled() bool {
	return l.level <= INFO
}

func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(level) {
	case "DEBUG", "TRACE":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}
