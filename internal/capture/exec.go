package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oszuidwest/zwfm-vumeter/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

// readBufferSize is ~21ms of mono 48kHz S16LE audio.
const readBufferSize = 2048

// execSession supervises an arecord or ffmpeg process and restarts it with
// exponential backoff when it exits.
type execSession struct {
	id       string
	analyzer *Analyzer
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	lastErr string
}

type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *util.BoundedBuffer
}

func startExec(parent context.Context, id string, analyzer *Analyzer) (Session, error) {
	name, args, err := BuildCaptureCommand(id)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", name, err)
	}

	ctx, cancel := context.WithCancel(parent)
	first, err := spawn(ctx, name, args)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &execSession{
		id:       id,
		analyzer: analyzer,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	log.Info().Str("command", name).Str("device", id).Msg("audio capture started")
	go s.supervise(ctx, name, args, first)
	return s, nil
}

func spawn(ctx context.Context, name string, args []string) (*process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error { return util.GracefulSignal(cmd.Process) }
	cmd.WaitDelay = types.ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, util.WrapError("create stdout pipe", err)
	}
	stderr := util.NewStderrBuffer()
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, util.WrapError("start "+name, err)
	}
	return &process{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (s *execSession) supervise(ctx context.Context, name string, args []string, p *process) {
	defer close(s.done)

	backoff := util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay)
	retries := 0

	for {
		startTime := time.Now()
		err := s.pump(p)
		runDuration := time.Since(startTime)

		if ctx.Err() != nil {
			return
		}
		// The meter falls to silence while the process is down.
		s.analyzer.Reset()

		errMsg := ffmpeg.ExtractLastError(p.stderr.String())
		if errMsg == "" && err != nil {
			errMsg = err.Error()
		}
		if errMsg == "" {
			errMsg = "capture process exited"
		}
		s.setErr(errMsg)

		if runDuration >= types.SuccessThreshold {
			retries = 0
			backoff.Reset()
		} else {
			retries++
		}

		// Restart until the process starts cleanly or retries run out.
		for {
			if retries >= types.MaxRetries {
				s.setErr(fmt.Sprintf("stopped after %d failed attempts: %s", types.MaxRetries, s.Err()))
				log.Error().Str("device", s.id).Int("attempts", types.MaxRetries).Msg("audio capture gave up")
				return
			}

			delay := backoff.Next()
			log.Warn().Str("device", s.id).Str("error", s.Err()).
				Dur("delay", delay).Int("attempt", retries+1).Int("max", types.MaxRetries).
				Msg("audio capture stopped, restarting")

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			p, err = spawn(ctx, name, args)
			if err == nil {
				break
			}
			s.setErr(err.Error())
			retries++
		}
	}
}

// pump feeds the analyzer until the process closes stdout, then waits for
// it. Samples split across reads are carried over.
func (s *execSession) pump(p *process) error {
	buf := make([]byte, readBufferSize+1)
	carry := 0

	for {
		n, err := p.stdout.Read(buf[carry:])
		total := carry + n
		even := total &^ 1
		if even > 0 {
			s.analyzer.WritePCM(buf[:even])
		}
		carry = total - even
		if carry == 1 {
			buf[0] = buf[even]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("device", s.id).Msg("capture read ended")
			}
			break
		}
	}

	return p.cmd.Wait()
}

func (s *execSession) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}

// ID implements Session.
func (s *execSession) ID() string { return s.id }

// Latest implements Session.
func (s *execSession) Latest() []byte { return s.analyzer.Latest() }

// Err implements Session.
func (s *execSession) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Stop implements Session. It signals the process and waits for the
// supervisor to exit; the process is killed after types.ShutdownTimeout.
func (s *execSession) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
		log.Info().Str("device", s.id).Msg("audio capture stopped")
	})
	return nil
}
