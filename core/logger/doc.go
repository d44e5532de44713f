// Package logger is a structured event log for shell sessions. Events are
// written as newline delimited JSON objects and can be read back and
// summarized with Report.
package logger
