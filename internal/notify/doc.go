// Package notify implements the Notification Gate component and the queue
// that carries its notices to the terminal.
package notify
