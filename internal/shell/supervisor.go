// Package shell supervises the editor server as a child process: it waits for
// the server to become ready, restarts it after unexpected exits, and stops
// it when the shell shuts down.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bilgisen/blog-editor/internal/logger"
	"github.com/rs/zerolog"
)

type State int

const (
	Starting State = iota
	Ready
	Running
	Restarting
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Process is a launched child
type Process interface {
	Pid() int
	Stdout() io.Reader
	Wait() error
	// Terminate asks the child to exit; Kill forces it
	Terminate() error
	Kill() error
}

type Launcher func(ctx context.Context) (Process, error)

// Probe reports nil once the child with the given pid is serving. A server
// answering for any other process does not count.
type Probe func(ctx context.Context, pid int) error

var ErrStartFailed = errors.New("server failed to start")

type Config struct {
	// ReadyMarker is looked for in each stdout line of the child
	ReadyMarker string
	// ReadyTimeout is how long to wait before assuming the child is ready
	ReadyTimeout time.Duration
	// RestartDelay is the pause between an unexpected exit and the relaunch
	RestartDelay time.Duration
	// StopTimeout bounds the wait after Terminate before Kill
	StopTimeout time.Duration

	Probe         Probe
	ProbeInterval time.Duration

	// OnReady runs once, the first time the child becomes ready
	OnReady func()
	// OnState observes every transition
	OnState func(State)

	// Logger receives supervisor events and the child's output.
	// If not provided, the global logger will be used.
	Logger *zerolog.Logger
}

var DefaultConfig = Config{
	ReadyTimeout:  5 * time.Second,
	RestartDelay:  2 * time.Second,
	StopTimeout:   5 * time.Second,
	ProbeInterval: 250 * time.Millisecond,
}

// outputDrainTimeout bounds how long an exited child's remaining output is
// read; a grandchild holding the pipe open must not stall the supervisor.
const outputDrainTimeout = 2 * time.Second

type Supervisor struct {
	launch Launcher
	cfg    Config
	log    zerolog.Logger

	mu    sync.Mutex
	state State
}

func NewSupervisor(launch Launcher, cfg Config) *Supervisor {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultConfig.ReadyTimeout
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultConfig.RestartDelay
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig.StopTimeout
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultConfig.ProbeInterval
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	return &Supervisor{
		launch: launch,
		cfg:    cfg,
		log:    log.With().Str("module", "supervisor").Logger(),
		state:  Stopped,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	s.log.Debug().Stringer("from", prev).Stringer("to", st).Msg("state change")
	if s.cfg.OnState != nil {
		s.cfg.OnState(st)
	}
}

// Run supervises the child until ctx is canceled. It returns an error only
// if the very first launch never becomes ready.
func (s *Supervisor) Run(ctx context.Context) error {
	everReady := false

	for {
		s.setState(Starting)

		proc, err := s.launch(ctx)
		if err != nil {
			if !everReady {
				s.setState(Stopped)
				return fmt.Errorf("%w: %v", ErrStartFailed, err)
			}
			s.log.Error().Err(err).Msg("Failed to relaunch server")
			if !s.waitRestart(ctx) {
				return nil
			}
			continue
		}

		ready := make(chan struct{})
		var readyOnce sync.Once
		markReady := func() { readyOnce.Do(func() { close(ready) }) }

		stdout := proc.Stdout()
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			s.watchOutput(stdout, markReady)
		}()

		// an exit is reported only after the child's last lines are logged
		exited := make(chan error, 1)
		go func() {
			err := proc.Wait()
			s.drainOutput(stdout, drained)
			exited <- err
		}()

		probeCtx, cancelProbe := context.WithCancel(ctx)
		if s.cfg.Probe != nil {
			go s.poll(probeCtx, proc.Pid(), markReady)
		}

		timer := time.NewTimer(s.cfg.ReadyTimeout)
		select {
		case <-ready:
		case <-timer.C:
			s.log.Warn().Dur("timeout", s.cfg.ReadyTimeout).Msg("Server start timeout, assuming it started")
		case err := <-exited:
			timer.Stop()
			cancelProbe()
			if !everReady {
				s.setState(Stopped)
				return fmt.Errorf("%w: exited with %v", ErrStartFailed, err)
			}
			s.log.Error().Err(err).Msg("Server exited while restarting")
			if !s.waitRestart(ctx) {
				return nil
			}
			continue
		case <-ctx.Done():
			timer.Stop()
			cancelProbe()
			s.stop(proc, exited)
			return nil
		}
		timer.Stop()
		cancelProbe()

		s.setState(Ready)
		if !everReady {
			everReady = true
			if s.cfg.OnReady != nil {
				s.cfg.OnReady()
			}
		}
		s.setState(Running)

		select {
		case err := <-exited:
			s.log.Warn().Err(err).Msg("Server unexpectedly closed, attempting restart")
			if !s.waitRestart(ctx) {
				return nil
			}
		case <-ctx.Done():
			s.stop(proc, exited)
			return nil
		}
	}
}

// waitRestart moves to Restarting and sleeps out the delay. It returns false
// if ctx ended first.
func (s *Supervisor) waitRestart(ctx context.Context) bool {
	s.setState(Restarting)

	t := time.NewTimer(s.cfg.RestartDelay)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		s.setState(Stopped)
		return false
	}
}

func (s *Supervisor) stop(proc Process, exited <-chan error) {
	s.log.Info().Msg("Stopping server")

	if err := proc.Terminate(); err != nil {
		s.log.Warn().Err(err).Msg("Terminate failed, killing server")
		proc.Kill()
	}

	t := time.NewTimer(s.cfg.StopTimeout)
	defer t.Stop()

	select {
	case <-exited:
	case <-t.C:
		s.log.Warn().Dur("timeout", s.cfg.StopTimeout).Msg("Server did not exit, killing it")
		proc.Kill()
		<-exited
	}

	s.setState(Stopped)
}

// watchOutput logs each line of r until EOF, then closes r if it can
func (s *Supervisor) watchOutput(r io.Reader, markReady func()) {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.log.Info().Str("child", "server").Msg(line)
		if s.cfg.ReadyMarker != "" && strings.Contains(line, s.cfg.ReadyMarker) {
			markReady()
		}
	}
}

// drainOutput waits for watchOutput to hit EOF. Past the timeout the reader
// is closed to unblock it.
func (s *Supervisor) drainOutput(r io.Reader, drained <-chan struct{}) {
	t := time.NewTimer(outputDrainTimeout)
	defer t.Stop()

	select {
	case <-drained:
		return
	case <-t.C:
	}

	s.log.Warn().Msg("Server output still open after exit, closing it")
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}
	<-drained
}

func (s *Supervisor) poll(ctx context.Context, pid int, markReady func()) {
	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		err := s.cfg.Probe(ctx, pid)
		if err == nil {
			markReady()
			return
		}
		s.log.Debug().Err(err).Int("pid", pid).Msg("Server not ready yet")
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
