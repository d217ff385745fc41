package catalog

import "testing"

func TestParseTrackStatus(t *testing.T) {
	cases := []struct {
		input    string
		expected TrackStatus
		ok       bool
	}{
		{"uploaded", TrackUploaded, true},
		{" Processing ", TrackProcessing, true},
		{"COMPLETED", TrackCompleted, true},
		{"failed", TrackFailed, true},
		{"", "", false},
		{"bogus", "", false},
	}
	for _, tc := range cases {
		status, ok := ParseTrackStatus(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParseTrackStatus(%q): ok=%v, expected %v", tc.input, ok, tc.ok)
		}
		if ok && status != tc.expected {
			t.Fatalf("ParseTrackStatus(%q)=%q, expected %q", tc.input, status, tc.expected)
		}
	}
}

func TestJobStatusPredicates(t *testing.T) {
	if !JobPending.IsActive() || !JobRunning.IsActive() {
		t.Fatal("pending and running must count as active")
	}
	for _, status := range []JobStatus{JobCompleted, JobFailed, JobCancelled} {
		if status.IsActive() {
			t.Fatalf("%s should not be active", status)
		}
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	if JobPending.IsTerminal() || JobRunning.IsTerminal() {
		t.Fatal("pending and running are not terminal")
	}
}

func TestClampProgress(t *testing.T) {
	cases := []struct {
		input    float64
		expected float64
	}{
		{-10, 0},
		{0, 0},
		{75, 75},
		{100, 100},
		{150, 100},
	}
	for _, tc := range cases {
		if got := ClampProgress(tc.input); got != tc.expected {
			t.Fatalf("ClampProgress(%f)=%f, expected %f", tc.input, got, tc.expected)
		}
	}
}

func TestIsRecognizedStemKind(t *testing.T) {
	for _, kind := range []string{StemVocals, StemAccompaniment, StemDrums, StemBass, StemOther, " Vocals "} {
		if !IsRecognizedStemKind(kind) {
			t.Fatalf("expected %q to be recognized", kind)
		}
	}
	if IsRecognizedStemKind("karaoke") {
		t.Fatal("unexpected stem kind accepted")
	}
}
