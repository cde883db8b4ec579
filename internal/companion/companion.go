// Package companion runs external recorders (video capture, face
// tracking) alongside the sensor logs. A Recorder is a session hook: it
// starts its command when recording is unlocked and stops it on lock.
package companion

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/sencol/hub/internal/session"
)

const defaultStopTimeout = 5 * time.Second

// Options configures a Recorder. Args may contain {session_id} and
// {session_dir}, replaced with the current session when the command starts.
type Options struct {
	Name        string
	Command     string
	Args        []string
	StopTimeout time.Duration
	Session     func() (session.Info, bool)
	Logger      zerolog.Logger
}

// Recorder owns at most one running child process.
type Recorder struct {
	opts Options
	log  zerolog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func New(opts Options) *Recorder {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	return &Recorder{
		opts: opts,
		log:  opts.Logger.With().Str("companion", opts.Name).Logger(),
	}
}

func (r *Recorder) Name() string { return r.opts.Name }

// OnUnlock starts the command unless it is already running.
func (r *Recorder) OnUnlock() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aliveLocked() {
		return nil
	}

	var info session.Info
	if r.opts.Session != nil {
		info, _ = r.opts.Session()
	}
	cmd := exec.Command(r.opts.Command, ExpandArgs(r.opts.Args, info)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", r.opts.Name, err)
	}
	done := make(chan struct{})
	go func() {
		err := cmd.Wait()
		if err != nil {
			r.log.Debug().Err(err).Msg("companion exited")
		}
		close(done)
	}()
	r.cmd, r.done = cmd, done
	r.log.Info().Int("pid", cmd.Process.Pid).Str("session", info.ID).Msg("companion started")
	return nil
}

// OnLock interrupts the command and kills it if it has not exited within
// the stop timeout.
func (r *Recorder) OnLock() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.aliveLocked() {
		return nil
	}
	pid := r.cmd.Process.Pid
	if err := r.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.log.Warn().Err(err).Msg("interrupt failed, killing")
		r.cmd.Process.Kill()
	}
	select {
	case <-r.done:
	case <-time.After(r.opts.StopTimeout):
		r.log.Warn().Int("pid", pid).Msg("companion ignored interrupt, killing")
		r.cmd.Process.Kill()
		<-r.done
	}
	r.log.Info().Int("pid", pid).Msg("companion stopped")
	r.cmd, r.done = nil, nil
	return nil
}

func (r *Recorder) aliveLocked() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// PID returns the running child's process id, or 0.
func (r *Recorder) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.aliveLocked() {
		return 0
	}
	return r.cmd.Process.Pid
}

// Running asks the OS whether the child is still alive.
func (r *Recorder) Running() bool {
	pid := r.PID()
	if pid == 0 {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	ok, err := p.IsRunning()
	return err == nil && ok
}

// ExpandArgs substitutes session placeholders in args.
func ExpandArgs(args []string, info session.Info) []string {
	rep := strings.NewReplacer("{session_id}", info.ID, "{session_dir}", info.Dir)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = rep.Replace(a)
	}
	return out
}
