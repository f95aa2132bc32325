package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/castwork/deadair/internal/types"
	"github.com/castwork/deadair/internal/util"
)

// startupGrace is how long a freshly started capture process must survive for
// acquisition to count as successful. Device open failures exit well within
// this window.
const startupGrace = 500 * time.Millisecond

// pcmChunkSize is the distributor read size, about 100ms of audio at 48kHz
// stereo S16LE.
const pcmChunkSize = 19200

// Consumer receives PCM chunks from the analysis source. Consumers must not
// retain buf past the call.
type Consumer func(buf []byte, n int)

// deviceFn resolves the audio input device at launch time so configuration
// changes apply on restart.
type deviceFn func() string

// Source runs the audio analysis capture process and fans its PCM output out
// to attached consumers. The process is held open for the whole session so
// detection keeps running while the recording sink is paused. Crashes are
// retried with backoff; the first start is validated synchronously so
// acquisition failures surface to the caller.
type Source struct {
	device     deviceFn
	ffmpegPath string
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	state      types.ProcessState
	stopChan   chan struct{}
	mu         sync.RWMutex
	lastError  string
	startTime  time.Time
	retryCount int
	backoff    *util.Backoff
	onFailure  func(lastError string)

	consumersMu sync.RWMutex
	consumers   map[string]Consumer
}

// NewSource creates an analysis source. The device function is consulted on
// every (re)start; ffmpegPath is used on platforms that capture through
// FFmpeg.
func NewSource(device func() string, ffmpegPath string) *Source {
	return &Source{
		device:     device,
		ffmpegPath: ffmpegPath,
		state:      types.ProcessStopped,
		backoff:    util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay),
		consumers:  make(map[string]Consumer),
	}
}

// SetOnFailure registers a callback invoked when the source gives up after
// exhausting its retries.
func (s *Source) SetOnFailure(fn func(lastError string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = fn
}

// Attach registers a consumer under the given name, replacing any previous
// consumer with that name.
func (s *Source) Attach(name string, c Consumer) {
	s.consumersMu.Lock()
	defer s.consumersMu.Unlock()
	s.consumers[name] = c
}

// Detach removes the named consumer.
func (s *Source) Detach(name string) {
	s.consumersMu.Lock()
	defer s.consumersMu.Unlock()
	delete(s.consumers, name)
}

// Running reports whether the capture process is currently running.
func (s *Source) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == types.ProcessRunning
}

// Status returns the current source process status.
func (s *Source) Status() types.ProcessStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.ProcessStatus{
		State:      s.state,
		RetryCount: s.retryCount,
		MaxRetries: types.MaxRetries,
		Error:      s.lastError,
	}
}

// Start launches the analysis capture process. The first attempt is watched
// synchronously so device problems surface as classified errors; once the
// process survives the startup grace it is supervised with backoff retries.
func (s *Source) Start() error {
	s.mu.Lock()
	if s.state == types.ProcessRunning || s.state == types.ProcessStarting {
		s.mu.Unlock()
		return ErrAlreadyAcquired
	}
	s.state = types.ProcessStarting
	s.stopChan = make(chan struct{})
	s.retryCount = 0
	s.backoff.Reset()
	s.mu.Unlock()

	wait, stderrBuf, err := s.launch()
	if err != nil {
		s.fail(err.Error())
		return err
	}

	select {
	case werr := <-wait:
		cerr := ClassifyStartError(util.ExtractLastError(stderrBuf.String()), werr)
		s.clearProcess()
		s.fail(cerr.Error())
		return cerr
	case <-time.After(startupGrace):
	}

	go s.supervise(wait, stderrBuf)
	return nil
}

// Stop shuts the capture process down gracefully, forcing a kill after the
// shutdown timeout.
func (s *Source) Stop() error {
	s.mu.Lock()
	if s.state == types.ProcessStopped || s.state == types.ProcessStopping {
		s.mu.Unlock()
		return nil
	}
	s.state = types.ProcessStopping
	if s.stopChan != nil {
		close(s.stopChan)
	}
	cmd := s.cmd
	cancel := s.cancel
	s.mu.Unlock()

	var errs []error

	if cmd != nil && cmd.Process != nil {
		if err := util.GracefulSignal(cmd.Process); err != nil {
			slog.Warn("failed to signal analysis capture", "error", err)
			errs = append(errs, util.WrapError("signal analysis capture", err))
		}
	}

	stopped := s.pollUntil(func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.cmd == nil
	})

	select {
	case <-stopped:
		slog.Info("analysis capture stopped gracefully")
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("analysis capture did not stop in time, forcing kill")
		if cancel != nil {
			cancel()
		}
		errs = append(errs, errors.New("analysis capture shutdown timeout"))
	}

	s.mu.Lock()
	s.state = types.ProcessStopped
	s.cmd = nil
	s.cancel = nil
	s.mu.Unlock()

	return errors.Join(errs...)
}

// launch builds and starts the capture process, wires its PCM output into a
// distributor goroutine and returns the process exit channel.
func (s *Source) launch() (<-chan error, *bytes.Buffer, error) {
	device := s.device()
	cmdName, args, err := BuildAnalysisCommand(device, s.ffmpegPath)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("starting analysis capture", "command", cmdName, "input", device)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, cmdName, args...)

	// Declarative graceful shutdown: signal first, wait, then kill.
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, nil, util.WrapError("open capture stdout", err)
	}

	stderrBuf := &bytes.Buffer{}
	cmd.Stderr = stderrBuf

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, ClassifyStartError("", err)
	}

	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cmd = cmd
		s.cancel = cancel
		s.state = types.ProcessRunning
		s.startTime = time.Now()
		s.lastError = ""
	}()

	go s.runDistributor(stdout)

	wait := make(chan error, 1)
	go func() { wait <- cmd.Wait() }()
	return wait, stderrBuf, nil
}

// supervise waits for capture process exits and restarts with backoff until
// stopped or retries are exhausted.
func (s *Source) supervise(wait <-chan error, stderrBuf *bytes.Buffer) {
	for {
		werr := <-wait

		s.mu.Lock()
		runDuration := time.Since(s.startTime)
		s.cmd = nil
		s.cancel = nil

		if s.state == types.ProcessStopping || s.state == types.ProcessStopped {
			s.mu.Unlock()
			return
		}

		errMsg := "analysis capture exited"
		if werr != nil {
			errMsg = werr.Error()
		}
		if stderr := util.ExtractLastError(stderrBuf.String()); stderr != "" {
			errMsg = stderr
		}
		s.lastError = errMsg
		slog.Error("analysis capture error", "error", errMsg)

		if runDuration >= types.SuccessThreshold {
			s.retryCount = 0
			s.backoff.Reset()
		} else {
			s.retryCount++
		}

		if s.retryCount >= types.MaxRetries {
			slog.Error("analysis capture failed, giving up", "attempts", types.MaxRetries)
			s.state = types.ProcessError
			s.lastError = fmt.Sprintf("stopped after %d failed attempts: %s", types.MaxRetries, errMsg)
			lastError := s.lastError
			onFailure := s.onFailure
			s.mu.Unlock()
			if onFailure != nil {
				onFailure(lastError)
			}
			return
		}

		s.state = types.ProcessStarting
		retryDelay := s.backoff.Next()
		stopChan := s.stopChan
		s.mu.Unlock()

		slog.Info("analysis capture stopped, waiting before restart",
			"delay", retryDelay, "attempt", s.retryCount+1, "max_retries", types.MaxRetries)
		select {
		case <-stopChan:
			return
		case <-time.After(retryDelay):
		}

		s.mu.Lock()
		if s.state == types.ProcessStopping || s.state == types.ProcessStopped {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		next, nextStderr, err := s.launch()
		if err != nil {
			// Feed the failure back through the exit handling above.
			ch := make(chan error, 1)
			ch <- err
			next, nextStderr = ch, &bytes.Buffer{}
		}
		wait, stderrBuf = next, nextStderr
	}
}

// runDistributor drains PCM from one capture process and fans it out to all
// attached consumers. Each launched process gets its own distributor bound to
// its own pipe.
func (s *Source) runDistributor(reader io.Reader) {
	buf := make([]byte, pcmChunkSize)

	for {
		s.mu.RLock()
		state := s.state
		stopChan := s.stopChan
		s.mu.RUnlock()

		if state != types.ProcessRunning {
			return
		}

		select {
		case <-stopChan:
			return
		default:
		}

		n, err := reader.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}

		s.distribute(buf, n)
	}
}

func (s *Source) distribute(buf []byte, n int) {
	s.consumersMu.RLock()
	defer s.consumersMu.RUnlock()
	for _, c := range s.consumers {
		c(buf, n)
	}
}

func (s *Source) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = types.ProcessError
	s.lastError = msg
}

func (s *Source) clearProcess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd = nil
	s.cancel = nil
}

// pollUntil signals when the given condition becomes true.
func (s *Source) pollUntil(condition func() bool) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for !condition() {
			time.Sleep(types.PollInterval)
		}
		close(done)
	}()
	return done
}
