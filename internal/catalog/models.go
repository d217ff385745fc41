package catalog

import (
	"strings"
	"time"
)

// TrackStatus represents the lifecycle of an ingested audio track.
type TrackStatus string

const (
	TrackUploaded   TrackStatus = "uploaded"
	TrackProcessing TrackStatus = "processing"
	TrackCompleted  TrackStatus = "completed"
	TrackFailed     TrackStatus = "failed"
)

var allTrackStatuses = []TrackStatus{
	TrackUploaded,
	TrackProcessing,
	TrackCompleted,
	TrackFailed,
}

var trackStatusSet = func() map[TrackStatus]struct{} {
	set := make(map[TrackStatus]struct{}, len(allTrackStatuses))
	for _, status := range allTrackStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// JobStatus represents the lifecycle of one separation attempt.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var allJobStatuses = []JobStatus{
	JobPending,
	JobRunning,
	JobCompleted,
	JobFailed,
	JobCancelled,
}

var jobStatusSet = func() map[JobStatus]struct{} {
	set := make(map[JobStatus]struct{}, len(allJobStatuses))
	for _, status := range allJobStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// activeJobStatuses are the statuses the exclusivity guard considers in-flight.
var activeJobStatuses = []JobStatus{JobPending, JobRunning}

// Track represents an ingested audio source persisted in SQLite.
type Track struct {
	ID              int64
	Title           string
	SourceFilename  string
	OriginalPath    string
	DurationSeconds float64
	SizeBytes       int64
	Status          TrackStatus
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Job represents one separation attempt against a track.
type Job struct {
	ID           int64
	TrackID      int64
	Status       JobStatus
	Progress     float64
	ErrorMessage string
	Engine       string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Stem records one attached separation output for a track.
type Stem struct {
	ID        int64
	TrackID   int64
	Kind      string
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

// Recognized stem kinds, matching what the separation engines emit.
const (
	StemVocals        = "vocals"
	StemAccompaniment = "accompaniment"
	StemDrums         = "drums"
	StemBass          = "bass"
	StemOther         = "other"
)

var recognizedStemKinds = map[string]struct{}{
	StemVocals:        {},
	StemAccompaniment: {},
	StemDrums:         {},
	StemBass:          {},
	StemOther:         {},
}

// IsRecognizedStemKind reports whether a stem kind tag is known.
func IsRecognizedStemKind(kind string) bool {
	_, ok := recognizedStemKinds[strings.ToLower(strings.TrimSpace(kind))]
	return ok
}

// AllTrackStatuses returns the ordered list of known track statuses.
func AllTrackStatuses() []TrackStatus {
	cp := make([]TrackStatus, len(allTrackStatuses))
	copy(cp, allTrackStatuses)
	return cp
}

// ParseTrackStatus converts a string into a known TrackStatus.
func ParseTrackStatus(value string) (TrackStatus, bool) {
	normalized := TrackStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := trackStatusSet[normalized]
	return normalized, ok
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := jobStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a job status is final.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a job status counts as in-flight for the
// exclusivity guard.
func (s JobStatus) IsActive() bool {
	return s == JobPending || s == JobRunning
}

// ClampProgress bounds a progress value to [0, 100].
func ClampProgress(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
