// SPDX-License-Identifier: MIT
package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	applog "lightshow/internal/log"
)

// PipeOutput feeds raw little-endian PCM to an external command's stdin,
// e.g. an FM transmitter. The command sees SAMPLE_RATE and CHANNELS in its
// environment.
type PipeOutput struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	w     *bufio.Writer
}

// NewPipeOutput starts command through the shell.
func NewPipeOutput(command string, sampleRate, channels int) (*PipeOutput, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Env = append(os.Environ(),
		"SAMPLE_RATE="+strconv.Itoa(sampleRate),
		"CHANNELS="+strconv.Itoa(channels),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open pipe to %q: %w", command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", command, err)
	}
	applog.Infof("Pipe: streaming %d Hz x%d to %q", sampleRate, channels, command)
	return &PipeOutput{cmd: cmd, stdin: stdin, w: bufio.NewWriter(stdin)}, nil
}

func (p *PipeOutput) Write(samples []int16) error {
	if err := binary.Write(p.w, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("pipe write: %w", err)
	}
	return p.w.Flush()
}

// Close flushes, closes stdin and waits for the command to exit.
func (p *PipeOutput) Close() error {
	flushErr := p.w.Flush()
	p.stdin.Close()
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("pipe command: %w", err)
	}
	return flushErr
}

var _ Output = (*PipeOutput)(nil)
