// Package logging sets up structured logging for docsearch.
//
// Logs are slog records. When a log file is configured they are written as
// JSON through a size-rotating writer; the stderr copy is human-readable text
// when stderr is a terminal and JSON otherwise. The viewer reads the JSON
// files back for the "docsearch logs" command.
package logging
