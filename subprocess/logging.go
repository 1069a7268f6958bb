package subprocess

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/livepeer/retention-engine/log"
)

// MaxCapturedOutputBytes caps how much stdout/stderr a render attempt keeps
// in memory for diagnostics (spec §4.9: "capture stderr/stdout up to 10 MB").
const MaxCapturedOutputBytes = 10 * 1024 * 1024

// cappedBuffer is an io.Writer that stops appending once the byte cap is hit,
// tracking truncation instead of growing unbounded.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	cap       int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) >= c.cap {
		c.truncated = true
		return len(p), nil
	}
	remaining := c.cap - len(c.buf)
	if len(p) > remaining {
		c.buf = append(c.buf, p[:remaining]...)
		c.truncated = true
	} else {
		c.buf = append(c.buf, p...)
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

func streamOutput(jobID string, src io.Reader, out io.Writer) {
	s := bufio.NewReader(src)
	for {
		var line []byte
		line, err := s.ReadSlice('\n')
		if err == io.EOF && len(line) == 0 {
			break
		}
		if len(line) > 0 {
			_, _ = out.Write(line)
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			log.LogError(jobID, "subprocess output stream read error", err)
			return
		}
	}
}

// CapturedRun runs cmd to completion, capturing up to MaxCapturedOutputBytes
// of combined stdout+stderr, and returns the command's formatted invocation
// alongside the captured text and exit error (spec §4.9 RenderExecutor
// contract step 1), grounded on the teacher's LogOutputs pipe-streaming
// pattern but bounded instead of forwarded straight to the process's own
// stdout/stderr.
func CapturedRun(jobID string, cmd *exec.Cmd) (output string, formattedCommand string, err error) {
	return CapturedRunWithOnStart(jobID, cmd, nil)
}

// CapturedRunWithOnStart behaves like CapturedRun but invokes onStart right
// after the process is spawned, so a caller (the scheduler) can register the
// child for cancellation while it is still running instead of after it
// exits.
func CapturedRunWithOnStart(jobID string, cmd *exec.Cmd, onStart func(*exec.Cmd)) (output string, formattedCommand string, err error) {
	capture := &cappedBuffer{cap: MaxCapturedOutputBytes}
	formattedCommand = fmt.Sprintf("%s %v", cmd.Path, cmd.Args[1:])

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", formattedCommand, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", formattedCommand, fmt.Errorf("opening stderr pipe: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); streamOutput(jobID, stdoutPipe, capture) }()
	go func() { defer wg.Done(); streamOutput(jobID, stderrPipe, capture) }()

	if err := cmd.Start(); err != nil {
		return capture.String(), formattedCommand, fmt.Errorf("starting command: %w", err)
	}
	if onStart != nil {
		onStart(cmd)
	}
	wg.Wait()
	runErr := cmd.Wait()

	if capture.truncated {
		log.Log(jobID, "subprocess output truncated at capture cap", "cap_bytes", MaxCapturedOutputBytes)
	}
	return capture.String(), formattedCommand, runErr
}
