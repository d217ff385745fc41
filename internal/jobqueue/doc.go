// Package jobqueue provides the durable SQLite work queue and the worker
// runtime that drains it. Queue entries track liveness through execution
// marker rows; an unfinished entry with no marker is an orphan the sweeper
// reconciles.
package jobqueue
