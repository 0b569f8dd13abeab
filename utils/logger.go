package utils

import (
	"io"
	"log"
	"os"
	"time"
)

var (
	// DebugLogger writes debug messages, discarded unless verbose output is on
	DebugLogger *log.Logger
	// InfoLogger writes informational messages
	InfoLogger *log.Logger
	// WarnLogger writes warnings
	WarnLogger *log.Logger
	// ErrorLogger writes errors
	ErrorLogger *log.Logger
)

func init() {
	DebugLogger = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)
	InfoLogger = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	WarnLogger = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
}

// SetVerbose turns debug output on or off
func SetVerbose(verbose bool) {
	if verbose {
		DebugLogger.SetOutput(os.Stdout)
	} else {
		DebugLogger.SetOutput(io.Discard)
	}
}

// SetOutput redirects every level but debug to w. nil restores stdout and stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		InfoLogger.SetOutput(os.Stdout)
		WarnLogger.SetOutput(os.Stdout)
		ErrorLogger.SetOutput(os.Stderr)
		return
	}
	InfoLogger.SetOutput(w)
	WarnLogger.SetOutput(w)
	ErrorLogger.SetOutput(w)
}

// LogDebug logs a debug message
func LogDebug(format string, v ...interface{}) {
	DebugLogger.Printf(format, v...)
}

// LogInfo logs an informational message
func LogInfo(format string, v ...interface{}) {
	InfoLogger.Printf(format, v...)
}

// LogWarn logs a warning
func LogWarn(format string, v ...interface{}) {
	WarnLogger.Printf(format, v...)
}

// LogError logs an error
func LogError(format string, v ...interface{}) {
	ErrorLogger.Printf(format, v...)
}

// TrackTime logs how long the named step took
func TrackTime(start time.Time, name string) {
	elapsed := time.Since(start)
	LogInfo("%s finished in %s", name, elapsed)
}
