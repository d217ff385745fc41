package separator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// stderr is kept for failure messages but never unbounded.
const maxStderrBytes = 64 * 1024

// ProgressUpdate captures a progress event emitted by the separation tool.
type ProgressUpdate struct {
	Percent float64
	Message string
}

// Result holds the terminal success payload of a separation run.
type Result struct {
	OutputPaths map[string]string
	Duration    float64
	SampleRate  int
	Message     string
}

// Client defines separation tool behaviour.
type Client interface {
	Separate(ctx context.Context, inputPath, outputDir string, jobID int64, progress func(ProgressUpdate)) (*Result, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the stem separation command-line tool. The tool writes one JSON
// event per stdout line: progress events while working, then a single
// success or error event before exiting.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "stem-separate"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

type toolEvent struct {
	Status      string            `json:"status"`
	Progress    float64           `json:"progress"`
	Message     string            `json:"message"`
	Error       string            `json:"error"`
	OutputPaths map[string]string `json:"output_paths"`
	Duration    float64           `json:"duration"`
	SampleRate  int               `json:"sample_rate"`
}

// Separate launches the separation tool and streams its events. The process
// exit status is authoritative: a non-zero exit fails the run even if a
// success event was seen first.
func (c *CLI) Separate(ctx context.Context, inputPath, outputDir string, jobID int64, progress func(ProgressUpdate)) (*Result, error) {
	if strings.TrimSpace(inputPath) == "" {
		return nil, errors.New("input path required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("output directory required")
	}

	args := []string{inputPath, outputDir, "--job-id", strconv.FormatInt(jobID, 10)}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr boundedBuffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.binary, err)
	}

	var (
		result  *Result
		toolErr string
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event toolEvent
		if err := json.Unmarshal(line, &event); err != nil {
			// Tool chatter that isn't an event; ignore it.
			continue
		}
		switch event.Status {
		case "progress":
			if progress != nil {
				progress(ProgressUpdate{Percent: clampPercent(event.Progress), Message: event.Message})
			}
		case "success":
			result = &Result{
				OutputPaths: event.OutputPaths,
				Duration:    event.Duration,
				SampleRate:  event.SampleRate,
				Message:     event.Message,
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
				return nil, fmt.Errorf("%s failed: %w: %s: %s", c.binary, err, toolErr, detail)
			}
			return nil, fmt.Errorf("%s failed: %w: %s", c.binary, err, toolErr)
		}
		if detail != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", c.binary, err, detail)
		}
		return nil, fmt.Errorf("%s failed: %w", c.binary, err)
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read %s output: %w", c.binary, scanErr)
	}

	if toolErr != "" {
		return nil, fmt.Errorf("%s reported error: %s", c.binary, toolErr)
	}
	if result == nil {
		return nil, fmt.Errorf("%s: separation produced no result", c.binary)
	}
	return result, nil
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// boundedBuffer keeps at most maxStderrBytes of writes and drops the rest.
type boundedBuffer struct {
	buf bytes.Buffer
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := maxStderrBytes - b.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	return b.buf.String()
}

var _ Client = (*CLI)(nil)
