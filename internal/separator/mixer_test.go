package separator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func setMixerHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("MIX_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestNewMixerWithBinary(t *testing.T) {
	mixer := NewMixer(WithMixerBinary("/opt/stem-mix"))
	if mixer.binary != "/opt/stem-mix" {
		t.Fatalf("expected binary override to be applied, got %q", mixer.binary)
	}
}

func TestMixerRequiresOutputPath(t *testing.T) {
	mixer := NewMixer()
	if _, err := mixer.Mix(context.Background(), "", []string{"/stems/vocals.wav"}); err == nil {
		t.Fatal("expected error when output path is empty")
	}
}

func TestMixerRequiresInputs(t *testing.T) {
	mixer := NewMixer()
	if _, err := mixer.Mix(context.Background(), "/out/mix.wav", nil); err == nil {
		t.Fatal("expected error when no inputs are given")
	}
}

func TestMixerPassesOutputFirst(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "MIX_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	mixer := NewMixer()
	inputs := []string{"/stems/vocals.wav", "/stems/drums.wav"}
	if _, err := mixer.Mix(context.Background(), "/out/mix.wav", inputs); err != nil {
		t.Fatalf("Mix returned error: %v", err)
	}
	if len(capturedArgs) != 3 || capturedArgs[0] != "/out/mix.wav" {
		t.Fatalf("expected output path first then inputs, got %v", capturedArgs)
	}
	if capturedArgs[1] != inputs[0] || capturedArgs[2] != inputs[1] {
		t.Fatalf("unexpected input ordering: %v", capturedArgs)
	}
}

func TestMixerSuccess(t *testing.T) {
	setMixerHelperCommand(t, "success")

	mixer := NewMixer()
	result, err := mixer.Mix(context.Background(), "/out/mix.wav", []string{"/stems/vocals.wav", "/stems/drums.wav"})
	if err != nil {
		t.Fatalf("Mix returned error: %v", err)
	}
	if result.OutputPath != "/out/mix.wav" {
		t.Fatalf("unexpected output path %q", result.OutputPath)
	}
	if result.StemsMixed != 2 || result.SampleRate != 44100 || result.Duration != 180.5 {
		t.Fatalf("unexpected result metadata: %#v", result)
	}
}

func TestMixerErrorEvent(t *testing.T) {
	setMixerHelperCommand(t, "failure")

	mixer := NewMixer()
	_, err := mixer.Mix(context.Background(), "/out/mix.wav", []string{"/stems/vocals.wav"})
	if err == nil {
		t.Fatal("expected mix failure error")
	}
	if !strings.Contains(err.Error(), "sample rate mismatch") {
		t.Fatalf("expected tool error message, got %v", err)
	}
	if !strings.Contains(err.Error(), "exit status 1") {
		t.Fatalf("expected exit status in failure message, got %v", err)
	}
}

func TestMixerNoResult(t *testing.T) {
	setMixerHelperCommand(t, "silent")

	mixer := NewMixer()
	_, err := mixer.Mix(context.Background(), "/out/mix.wav", []string{"/stems/vocals.wav"})
	if err == nil {
		t.Fatal("expected error when no result was emitted")
	}
	if !strings.Contains(err.Error(), "produced no result") {
		t.Fatalf("expected no-result error, got %v", err)
	}
}
