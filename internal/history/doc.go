// Package history persists device state transitions to SQLite.
//
// Each row is one observed transition: the effective state at that moment,
// whether it came from a poll or a command (with the command's correlation
// id), and the device's connectivity. A subscriber bridges engine events
// into the repository; the local API reads them back newest-first with
// bounded limits.
package history
