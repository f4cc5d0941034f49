// Copyright 2019 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"strings"
	"sync"
)

// Level is the log message severity level below which we suppress messages.
type Level int32

const (
	// LevelDebug corresponds to debug messages.
	LevelDebug Level = iota
	// LevelInfo corresponds to informational messages.
	LevelInfo
	// LevelWarn corresponds to warning messages.
	LevelWarn
	// LevelError corresponds to error messages.
	LevelError
)

// Logger is the interface for configuring and producing log messages.
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})

	EnableDebug(bool) bool
	DebugEnabled() bool
	Debug(format string, args ...interface{})

	Source() string
}

// Backend is an entity that can emit log messages.
type Backend interface {
	Name() string
	Log(level Level, source, message string)
	Flush()
}

// Our logger instance.
type logger struct {
	source string // logger source/module name
	debug  bool   // debugging for this instance
}

// log is our runtime state.
type log struct {
	sync.RWMutex
	level   Level              // lowest unsuppressed severity
	active  Backend            // active backend
	loggers map[string]*logger // running loggers (log sources)
	debug   srcmap             // debug state for sources
}

var logging = &log{
	level:   LevelInfo,
	active:  &klogBackend{},
	loggers: make(map[string]*logger),
	debug:   make(srcmap),
}

// Get an existing logger or create a new one.
func Get(source string) Logger {
	return logging.get(source)
}

// NewLogger creates a new logger, getting the existing one if possible.
func NewLogger(source string) Logger {
	return logging.get(source)
}

// SetBackend activates the given backend, returning the previous one.
func SetBackend(b Backend) Backend {
	logging.Lock()
	defer logging.Unlock()

	prev := logging.active
	if prev != nil {
		prev.Flush()
	}
	logging.active = b
	return prev
}

// SetLevel sets the lowest severity of messages to pass through.
func SetLevel(level Level) {
	logging.Lock()
	defer logging.Unlock()
	logging.level = level
}

// Flush flushes any messages buffered by the active backend.
func Flush() {
	logging.RLock()
	defer logging.RUnlock()
	if logging.active != nil {
		logging.active.Flush()
	}
}

func (log *log) get(source string) *logger {
	source = strings.Trim(source, "[] ")

	log.Lock()
	defer log.Unlock()

	if l, ok := log.loggers[source]; ok {
		return l
	}
	l := &logger{
		source: source,
		debug:  log.debug.enabled(source),
	}
	log.loggers[source] = l

	return l
}

// update reconfigures debugging for all running loggers.
func (log *log) update(debug srcmap) {
	log.debug = debug
	for source, l := range log.loggers {
		l.debug = debug.enabled(source)
	}
}

func (log *log) emit(level Level, source, message string) {
	log.RLock()
	defer log.RUnlock()
	if log.active == nil {
		return
	}
	log.active.Log(level, source, message)
}

func (l *logger) passthrough(level Level) bool {
	logging.RLock()
	defer logging.RUnlock()
	if level == LevelDebug {
		return l.debug
	}
	return logging.level <= level
}

// Source returns the name of the source the logger emits messages for.
func (l *logger) Source() string {
	return l.source
}

// Info emits an info message.
func (l *logger) Info(format string, args ...interface{}) {
	if !l.passthrough(LevelInfo) {
		return
	}
	logging.emit(LevelInfo, l.source, fmt.Sprintf(format, args...))
}

// Warn emits a warning message.
func (l *logger) Warn(format string, args ...interface{}) {
	if !l.passthrough(LevelWarn) {
		return
	}
	logging.emit(LevelWarn, l.source, fmt.Sprintf(format, args...))
}

// Error emits an error message.
func (l *logger) Error(format string, args ...interface{}) {
	if !l.passthrough(LevelError) {
		return
	}
	logging.emit(LevelError, l.source, fmt.Sprintf(format, args...))
}

// EnableDebug enables or disables debug messages, returning the old state.
func (l *logger) EnableDebug(enable bool) bool {
	logging.Lock()
	defer logging.Unlock()
	old := l.debug
	l.debug = enable
	return old
}

// DebugEnabled checks if debug messages are enabled for this logger.
func (l *logger) DebugEnabled() bool {
	logging.RLock()
	defer logging.RUnlock()
	return l.debug
}

// Debug emits a debug message.
func (l *logger) Debug(format string, args ...interface{}) {
	if !l.passthrough(LevelDebug) {
		return
	}
	logging.emit(LevelDebug, l.source, fmt.Sprintf(format, args...))
}

// Default logger/source.
var deflog = NewLogger("mem-diag")

// Default gets the default logger.
func Default() Logger {
	return deflog
}

// Info emits an info message with the default source.
func Info(format string, args ...interface{}) {
	deflog.Info(format, args...)
}

// Warn emits a warning message with the default source.
func Warn(format string, args ...interface{}) {
	deflog.Warn(format, args...)
}

// Error emits an error message with the default source.
func Error(format string, args ...interface{}) {
	deflog.Error(format, args...)
}

// Debug emits a debug message with the default source.
func Debug(format string, args ...interface{}) {
	deflog.Debug(format, args...)
}

func loggerError(format string, args ...interface{}) error {
	return fmt.Errorf("logger: "+format, args...)
}
