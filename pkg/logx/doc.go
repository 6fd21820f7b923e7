// Package logx provides a small structured logging facade over zerolog.
//
// It exposes a value-type Logger with functional field helpers and a
// Service that owns the output sinks (console, file) and supports
// hot-reloading the logging configuration at runtime.
package logx
