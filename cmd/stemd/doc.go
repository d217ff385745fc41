// Package main hosts the stemd CLI entrypoint and command graph.
//
// The Cobra-based command tree covers daemon startup, audio ingest, track
// status reporting, retry and removal, queue maintenance, and configuration
// scaffolding. Commands open the catalog and queue databases directly, so
// most of them work whether or not the daemon is running; only the daemon
// command holds the single-instance lock.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
