// Package logging provides file-based logging with rotation for bmsync.
// Every command writes JSON logs to a rotating file under ~/.bmsync/logs/,
// echoed to stderr, at info level by default.
//
// The --debug flag lowers the level to debug; the destinations are the same.
package logging
