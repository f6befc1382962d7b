// Package device implements [audio.Microphone] and [audio.Output] on top of
// external processes that read or write raw 16-bit little-endian PCM, such as
// arecord/aplay on Linux or ffmpeg/ffplay anywhere.
//
// Argument lists may contain the placeholders {rate} and {channels}, which are
// replaced with the stream format when the process starts.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/kisanlive/pkg/audio"
)

// shutdownTimeout bounds how long a process may take to exit after it was
// interrupted before it is killed.
const shutdownTimeout = 3 * time.Second

// ExpandArgs substitutes the {rate} and {channels} placeholders in args.
func ExpandArgs(args []string, format audio.Format) []string {
	r := strings.NewReplacer(
		"{rate}", strconv.Itoa(format.SampleRate),
		"{channels}", strconv.Itoa(format.Channels),
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// process is a running PCM subprocess.
type process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *bytes.Buffer
}

// newProcess prepares a subprocess whose lifetime is bound to ctx. Cancelling
// ctx interrupts the process first and kills it after shutdownTimeout.
func newProcess(ctx context.Context, name string, args []string) *process {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = shutdownTimeout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	return &process{cmd: cmd, cancel: cancel, stderr: &stderr}
}

// wait stops the process and reports how it ended. The error includes the
// last line the process wrote to stderr.
func (p *process) wait() error {
	err := p.cmd.Wait()
	p.cancel()
	if err == nil {
		return nil
	}
	if line := lastLine(p.stderr.String()); line != "" {
		return fmt.Errorf("%s: %w: %s", p.cmd.Path, err, line)
	}
	return fmt.Errorf("%s: %w", p.cmd.Path, err)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
