// Package logx is agentcron's structured logging on top of zerolog.
//
// Console output is short (timestamp, level, file:line); the optional file
// sink writes JSON lines. Loggers taken from a Service follow Service.Apply,
// so a config reload changes level and sinks without rebuilding components.
package logx
