package separator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MixResult holds the terminal payload of a mix run.
type MixResult struct {
	OutputPath string
	Duration   float64
	SampleRate int
	StemsMixed int
	Message    string
}

// Mixer defines stem mixing behaviour.
type Mixer interface {
	Mix(ctx context.Context, outputPath string, inputPaths []string) (*MixResult, error)
}

// MixerOption configures the mixer client.
type MixerOption func(*MixerCLI)

// WithMixerBinary overrides the default mixer binary name.
func WithMixerBinary(binary string) MixerOption {
	return func(m *MixerCLI) {
		if binary != "" {
			m.binary = binary
		}
	}
}

// MixerCLI wraps the stem mixing command-line tool: it sums the given stem
// files into one normalized output file and reports a single JSON result
// line on stdout.
type MixerCLI struct {
	binary string
}

// NewMixer constructs a mixer client using defaults.
func NewMixer(opts ...MixerOption) *MixerCLI {
	mixer := &MixerCLI{binary: "stem-mix"}
	for _, opt := range opts {
		opt(mixer)
	}
	return mixer
}

type mixEvent struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Error      string  `json:"error"`
	OutputPath string  `json:"output_path"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
	StemsMixed int     `json:"stems_mixed"`
}

// Mix launches the mixing tool. Like the separation client, the exit status
// is authoritative and the tool may report its own failure as a JSON error
// line before exiting non-zero.
func (m *MixerCLI) Mix(ctx context.Context, outputPath string, inputPaths []string) (*MixResult, error) {
	if strings.TrimSpace(outputPath) == "" {
		return nil, errors.New("output path required")
	}
	if len(inputPaths) == 0 {
		return nil, errors.New("at least one input stem required")
	}

	args := append([]string{outputPath}, inputPaths...)
	cmd := commandContext(ctx, m.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr boundedBuffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", m.binary, err)
	}

	var (
		result  *MixResult
		toolErr string
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event mixEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		switch event.Status {
		case "success":
			result = &MixResult{
				OutputPath: event.OutputPath,
				Duration:   event.Duration,
				SampleRate: event.SampleRate,
				StemsMixed: event.StemsMixed,
				Message:    event.Message,
			}
		case "error":
			toolErr = strings.TrimSpace(event.Error)
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if toolErr != "" {
			if detail != "" {
				return nil, fmt.Errorf("%s failed: %w: %s: %s", m.binary, err, toolErr, detail)
			}
			return nil, fmt.Errorf("%s failed: %w: %s", m.binary, err, toolErr)
		}
		if detail != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", m.binary, err, detail)
		}
		return nil, fmt.Errorf("%s failed: %w", m.binary, err)
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read %s output: %w", m.binary, scanErr)
	}

	if toolErr != "" {
		return nil, fmt.Errorf("%s reported error: %s", m.binary, toolErr)
	}
	if result == nil {
		return nil, fmt.Errorf("%s: mix produced no result", m.binary)
	}
	return result, nil
}

var _ Mixer = (*MixerCLI)(nil)
