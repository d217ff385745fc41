// Package catalog persists tracks, separation jobs, and stem attachments in
// SQLite. Status transitions are enforced with guarded UPDATE statements so a
// stale writer can never move a record along an illegal edge.
package catalog
