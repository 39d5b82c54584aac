// Package logging builds the process-wide slog logger. Console output is a
// compact single-line format with the component attribute rendered as a
// prefix; JSON output uses ts/level/msg keys.
package logging
