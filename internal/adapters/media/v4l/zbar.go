package v4l

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
)

const (
	DefaultDecoderBin   = "zbarcam"
	DefaultStartupGrace = 500 * time.Millisecond
	maxStderrBytes      = 4096
)

// execCmd allows mocking exec.CommandContext in tests
var execCmd = exec.CommandContext
var lookPath = exec.LookPath

// ZbarDecoder runs zbarcam against an acquired device and reports each
// decoded symbol.
type ZbarDecoder struct {
	bin   string
	grace time.Duration
}

// NewZbarDecoder creates a decoder. The process must survive the grace period
// for the decode loop to count as started.
func NewZbarDecoder(bin string, grace time.Duration) *ZbarDecoder {
	if bin == "" {
		bin = DefaultDecoderBin
	}
	if grace <= 0 {
		grace = DefaultStartupGrace
	}
	return &ZbarDecoder{bin: bin, grace: grace}
}

// DecodeLoop starts zbarcam and calls onPayload for every line it prints.
// If zbarcam dies after startup, onExit receives the classified exit.
func (z *ZbarDecoder) DecodeLoop(h ports.StreamHandle, onPayload func(string), onExit func(error)) (ports.StopFunc, error) {
	path, err := lookPath(z.bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDecoderUnavailable, z.bin, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := execCmd(ctx, path, "--raw", "--nodisplay", "--quiet", h.DeviceID())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to start %s: %v", domain.ErrDecoderUnavailable, z.bin, err)
	}
	log.Printf("[ZBAR] decoder started on %s (pid %d)", h.DeviceID(), cmd.Process.Pid)

	var errBuf limitedBuffer
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		readPayloads(stdout, onPayload)
	}()
	go func() {
		defer readers.Done()
		io.Copy(&errBuf, stderr)
	}()

	exited := make(chan error, 1)
	go func() {
		readers.Wait()
		exited <- cmd.Wait()
	}()

	select {
	case waitErr := <-exited:
		cancel()
		return nil, classifyDecoderExit(h.DeviceID(), errBuf.String(), waitErr)
	case <-time.After(z.grace):
	}

	var stopping atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		waitErr := <-exited
		cancel()
		if stopping.Load() {
			return
		}
		exitErr := classifyDecoderExit(h.DeviceID(), errBuf.String(), waitErr)
		log.Printf("[ZBAR] decoder on %s exited unexpectedly: %v", h.DeviceID(), exitErr)
		if onExit != nil {
			onExit(exitErr)
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			stopping.Store(true)
			if cmd.Process != nil && cmd.Process.Pid > 0 {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			cancel()
			<-done
			log.Printf("[ZBAR] decoder on %s stopped", h.DeviceID())
		})
	}
	return stop, nil
}

func readPayloads(r io.Reader, onPayload func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		onPayload(line)
	}
}

// classifyDecoderExit maps a zbarcam exit to a camera error.
func classifyDecoderExit(id, stderr string, waitErr error) error {
	msg := strings.ToLower(stderr)
	detail := strings.TrimSpace(stderr)
	if detail == "" && waitErr != nil {
		detail = waitErr.Error()
	}

	switch {
	case strings.Contains(msg, "device or resource busy"):
		return fmt.Errorf("%w: %s: %s", domain.ErrCameraInUse, id, detail)
	case strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %s: %s", domain.ErrCameraPermission, id, detail)
	case strings.Contains(msg, "no such file or directory"), strings.Contains(msg, "no such device"):
		return fmt.Errorf("%w: %s: %s", domain.ErrCameraNotFound, id, detail)
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) || waitErr == nil {
		return fmt.Errorf("%w: %s: decoder exited: %s", domain.ErrCameraBusy, id, detail)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrDecoderUnavailable, id, waitErr)
}

// limitedBuffer keeps the first maxStderrBytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := maxStderrBytes - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ ports.Decoder = (*ZbarDecoder)(nil)
