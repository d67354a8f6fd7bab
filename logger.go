// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import "fmt"

type LogType string

const (
	LogTypeStore      LogType = "store"      // backing-store commands and failures
	LogTypeActivity   LogType = "activity"   // activity log writes
	LogTypeBroadcast  LogType = "broadcast"  // snapshot pushes to subscribers
	LogTypeRollover   LogType = "rollover"   // date-window recomputation
	LogTypeConnection LogType = "connection" // subscriber/identity connection events
	LogTypeServer     LogType = "server"     // server lifecycle events
	LogTypeError      LogType = "error"      // internal errors
	LogTypeOther      LogType = "other"      // generic
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

type Logger interface {
	Log(logType LogType, level LogLevel, msg string, args ...interface{})
}

type DefaultLogger struct{}

func (l *DefaultLogger) Log(logType LogType, level LogLevel, msg string, args ...interface{}) {
	prefix := ""
	switch level {
	case LogLevelError:
		prefix = "[ERROR]"
	case LogLevelWarn:
		prefix = "[WARN]"
	case LogLevelInfo:
		prefix = "[INFO]"
	case LogLevelDebug:
		prefix = "[DEBUG]"
	}
	fmt.Printf("%s [%s] %s\n", prefix, logType, fmt.Sprintf(msg, args...))
}

type NullLogger struct{}

func (l *NullLogger) Log(logType LogType, level LogLevel, msg string, args ...interface{}) {}
