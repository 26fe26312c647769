package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Field is a single structured logging field.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field      { return Field{Key: key, Value: value} }
func Int(key string, value int) Field     { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field   { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Info logs informational messages. A trailing []Field argument switches
// to structured output.
func Info(format string, args ...interface{}) {
	if fields, ok := trailingFields(args); ok {
		logStructured("INFO", format, fields...)
		return
	}
	log.Printf("INFO: "+format, args...)
}

// Warn logs warning messages.
func Warn(format string, args ...interface{}) {
	if fields, ok := trailingFields(args); ok {
		logStructured("WARN", format, fields...)
		return
	}
	log.Printf("WARN: "+format, args...)
}

// Error logs error messages.
func Error(format string, args ...interface{}) {
	if fields, ok := trailingFields(args); ok {
		logStructured("ERROR", format, fields...)
		return
	}
	log.Printf("ERROR: "+format, args...)
}

// Debug logs debug messages when LOG_LEVEL=debug.
func Debug(format string, args ...interface{}) {
	if os.Getenv("LOG_LEVEL") != "debug" {
		return
	}
	if fields, ok := trailingFields(args); ok {
		logStructured("DEBUG", format, fields...)
		return
	}
	log.Printf("DEBUG: "+format, args...)
}

// InfoStructured logs with explicit fields.
func InfoStructured(msg string, fields ...Field) { logStructured("INFO", msg, fields...) }

// WarnStructured logs a warning with explicit fields.
func WarnStructured(msg string, fields ...Field) { logStructured("WARN", msg, fields...) }

// ErrorStructured logs an error with explicit fields.
func ErrorStructured(msg string, fields ...Field) { logStructured("ERROR", msg, fields...) }

func trailingFields(args []interface{}) ([]Field, bool) {
	if len(args) == 0 {
		return nil, false
	}
	fields, ok := args[len(args)-1].([]Field)
	return fields, ok
}

func logStructured(level, msg string, fields ...Field) {
	if os.Getenv("LOG_FORMAT") == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"level":     level,
			"message":   msg,
		}
		for _, f := range fields {
			entry[f.Key] = f.Value
		}
		data, _ := json.Marshal(entry)
		log.Println(string(data))
		return
	}

	fieldStr := ""
	for i, f := range fields {
		if i > 0 {
			fieldStr += " "
		} else {
			fieldStr = " "
		}
		fieldStr += fmt.Sprintf("%s=%v", f.Key, f.Value)
	}
	log.Printf("%s: %s%s", level, msg, fieldStr)
}
