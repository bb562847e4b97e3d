// Package app wires the synchronizer, its event feed and the status server
// into a runnable process, decoupled from any specific entrypoint like a CLI.
package app
