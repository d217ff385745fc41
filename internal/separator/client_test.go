package separator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/stem-separate"))
	if cli.binary != "/opt/stem-separate" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestCLISeparateRequiresInput(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Separate(context.Background(), "", "/tmp", 1, nil); err == nil {
		t.Fatal("expected error when input path is empty")
	}
}

func TestCLISeparateRequiresOutputDir(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Separate(context.Background(), "/music/song.wav", "", 1, nil); err == nil {
		t.Fatal("expected error when output directory is empty")
	}
}

func TestCLISeparatePassesJobID(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "SEPARATE_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	cli := NewCLI()
	tempDir := t.TempDir()
	if _, err := cli.Separate(context.Background(), filepath.Join(tempDir, "song.wav"), tempDir, 77, nil); err != nil {
		t.Fatalf("Separate returned error: %v", err)
	}

	idx := findArg(capturedArgs, "--job-id")
	if idx == -1 || idx+1 >= len(capturedArgs) {
		t.Fatalf("expected --job-id flag with value, got %v", capturedArgs)
	}
	if capturedArgs[idx+1] != "77" {
		t.Fatalf("expected job id 77, got %q", capturedArgs[idx+1])
	}
}

func TestCLISeparateSuccess(t *testing.T) {
	setHelperCommand(t, "success")

	cli := NewCLI()
	tempDir := t.TempDir()

	var updates []ProgressUpdate
	result, err := cli.Separate(context.Background(), filepath.Join(tempDir, "song.wav"), tempDir, 1, func(update ProgressUpdate) {
		updates = append(updates, update)
	})
	if err != nil {
		t.Fatalf("Separate returned error: %v", err)
	}

	if len(updates) != 3 {
		t.Fatalf("expected 3 progress updates, got %d", len(updates))
	}
	// out-of-range progress values are clamped before the callback
	if updates[0].Percent != 0 {
		t.Fatalf("expected first update clamped to 0, got %f", updates[0].Percent)
	}
	if updates[2].Percent != 100 {
		t.Fatalf("expected final update clamped to 100, got %f", updates[2].Percent)
	}
	if result.OutputPaths["vocals"] != "/out/vocals.wav" {
		t.Fatalf("unexpected output paths: %#v", result.OutputPaths)
	}
	if result.Duration != 212.5 || result.SampleRate != 44100 {
		t.Fatalf("unexpected result metadata: %#v", result)
	}
}

func TestCLISeparateErrorEvent(t *testing.T) {
	setHelperCommand(t, "failure")

	cli := NewCLI()
	tempDir := t.TempDir()
	_, err := cli.Separate(context.Background(), filepath.Join(tempDir, "song.wav"), tempDir, 1, nil)
	if err == nil {
		t.Fatal("expected separation failure error")
	}
	if !strings.Contains(err.Error(), "model checkpoint missing") {
		t.Fatalf("expected tool error message, got %v", err)
	}
	if !strings.Contains(err.Error(), "exit status 1") {
		t.Fatalf("expected exit status in failure message, got %v", err)
	}
}

func TestCLISeparateExitOverridesSuccess(t *testing.T) {
	setHelperCommand(t, "lyingsuccess")

	cli := NewCLI()
	tempDir := t.TempDir()
	if _, err := cli.Separate(context.Background(), filepath.Join(tempDir, "song.wav"), tempDir, 1, nil); err == nil {
		t.Fatal("expected non-zero exit to override success event")
	}
}

func TestCLISeparateNoTerminalEvent(t *testing.T) {
	setHelperCommand(t, "silent")

	cli := NewCLI()
	tempDir := t.TempDir()
	_, err := cli.Separate(context.Background(), filepath.Join(tempDir, "song.wav"), tempDir, 1, nil)
	if err == nil {
		t.Fatal("expected error when no terminal event was emitted")
	}
	if !strings.Contains(err.Error(), "produced no result") {
		t.Fatalf("expected no-result error, got %v", err)
	}
}

func TestCLISeparateSkipsInvalidJSON(t *testing.T) {
	setHelperCommand(t, "badjson")

	cli := NewCLI()
	tempDir := t.TempDir()

	var updates []ProgressUpdate
	result, err := cli.Separate(context.Background(), filepath.Join(tempDir, "song.wav"), tempDir, 1, func(update ProgressUpdate) {
		updates = append(updates, update)
	})
	if err != nil {
		t.Fatalf("Separate returned error: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 progress update from valid json, got %d", len(updates))
	}
	if result == nil {
		t.Fatal("expected success result after skipping chatter")
	}
}

func findArg(args []string, flag string) int {
	for i, arg := range args {
		if arg == flag {
			return i
		}
	}
	return -1
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("SEPARATE_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	switch os.Getenv("MIX_HELPER_MODE") {
	case "success":
		fmt.Println(`{"status":"success","message":"Stems mixed successfully","output_path":"/out/mix.wav","sample_rate":44100,"duration":180.5,"stems_mixed":2}`)
		return
	case "failure":
		fmt.Println(`{"status":"error","error":"sample rate mismatch: expected 44100, got 48000"}`)
		os.Exit(1)
	case "silent":
		fmt.Println("mixer warming up")
		return
	}

	switch os.Getenv("SEPARATE_HELPER_MODE") {
	case "success":
		fmt.Println(`{"status":"progress","progress":-5,"message":"loading model"}`)
		fmt.Println(`{"status":"progress","progress":50,"message":"separating"}`)
		fmt.Println(`{"status":"progress","progress":120,"message":"writing stems"}`)
		fmt.Println(`{"status":"success","output_paths":{"vocals":"/out/vocals.wav","accompaniment":"/out/accompaniment.wav"},"duration":212.5,"sample_rate":44100}`)
	case "failure":
		fmt.Println(`{"status":"progress","progress":10,"message":"loading model"}`)
		fmt.Println(`{"status":"error","error":"model checkpoint missing"}`)
		os.Exit(1)
	case "lyingsuccess":
		fmt.Println(`{"status":"success","output_paths":{"vocals":"/out/vocals.wav"}}`)
		fmt.Fprintln(os.Stderr, "post-success crash")
		os.Exit(3)
	case "silent":
		fmt.Println("separation tool booting")
	case "badjson":
		fmt.Println("not json at all")
		fmt.Println(`{"status":"progress","progress":40,"message":"separating"}`)
		fmt.Println(`{broken`)
		fmt.Println(`{"status":"success","output_paths":{"vocals":"/out/vocals.wav"},"duration":10,"sample_rate":44100}`)
	}
}
