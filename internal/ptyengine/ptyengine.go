// Package ptyengine spawns a shell behind a pseudo-terminal and manages its
// lifecycle: raw-mode entry/restore on the controlling terminal, window-size
// propagation, and child reap with signal-aware exit code mapping.
//
// Grounded on the teacher's PTY spawn path (creack/pty-based session
// bring-up and readPTY loop) and its raw-mode/SIGWINCH handling in the CLI
// entrypoint.
package ptyengine

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/omnish-sh/omnish/internal/omnerr"
)

// Pty is a running shell behind a pseudo-terminal master.
type Pty struct {
	cmd    *exec.Cmd
	master *os.File

	mu       sync.Mutex
	exitCode int
	waited   bool
	waitErr  error
}

// Spawn forks command (with args and an optionally augmented environment),
// attaching its controlling terminal to a newly allocated pty. The caller
// owns the returned Pty's master fd for reading/writing/resizing.
func Spawn(command string, args []string, env []string, cols, rows uint16) (*Pty, error) {
	cmd := exec.Command(command, args...)
	if env != nil {
		cmd.Env = env
	}
	master, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, omnerr.New("ptyengine.Spawn", omnerr.PtySpawn, err)
	}
	return &Pty{cmd: cmd, master: master}, nil
}

// Read reads available output from the pty master.
func (p *Pty) Read(buf []byte) (int, error) {
	n, err := p.master.Read(buf)
	if err != nil {
		return n, omnerr.New("ptyengine.Read", omnerr.PtyIo, err)
	}
	return n, nil
}

// Write writes bytes to the pty master (i.e. to the child's stdin).
func (p *Pty) Write(buf []byte) (int, error) {
	n, err := p.master.Write(buf)
	if err != nil {
		return n, omnerr.New("ptyengine.Write", omnerr.PtyIo, err)
	}
	return n, nil
}

// SetWindowSize propagates a terminal resize to the child.
func (p *Pty) SetWindowSize(rows, cols uint16) error {
	if err := pty.Setsize(p.master, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return omnerr.New("ptyengine.SetWindowSize", omnerr.PtyIo, err)
	}
	return nil
}

// MasterFd exposes the master descriptor for poll-style multiplexing.
func (p *Pty) MasterFd() uintptr { return p.master.Fd() }

// ChildPid returns the spawned child's pid.
func (p *Pty) ChildPid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Wait blocks until the child exits and returns its mapped exit code: the
// process's own code, or 128+signum if it died from a signal.
func (p *Pty) Wait() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waited {
		return p.exitCode, p.waitErr
	}
	p.waited = true
	err := p.cmd.Wait()
	_ = p.master.Close()
	if err == nil {
		p.exitCode = 0
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				p.exitCode = 128 + int(status.Signal())
				return p.exitCode, nil
			}
			p.exitCode = status.ExitStatus()
			return p.exitCode, nil
		}
		p.exitCode = exitErr.ExitCode()
		return p.exitCode, nil
	}
	p.waitErr = omnerr.New("ptyengine.Wait", omnerr.PtyIo, err)
	return -1, p.waitErr
}

// RawModeGuard captures a terminal's current termios and restores it on
// Restore, which is safe to call multiple times (idempotent) so a deferred
// Restore still runs correctly on every exit path including a panic
// recovered higher up the stack.
type RawModeGuard struct {
	fd       int
	oldState *term.State
	mu       sync.Mutex
	restored bool
}

// EnterRawMode captures fd's termios and switches it to raw mode.
func EnterRawMode(fd int) (*RawModeGuard, error) {
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, omnerr.New("ptyengine.EnterRawMode", omnerr.TerminalMode, err)
	}
	return &RawModeGuard{fd: fd, oldState: old}, nil
}

// Restore reverts the terminal to the state captured by EnterRawMode.
func (g *RawModeGuard) Restore() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.restored {
		return nil
	}
	g.restored = true
	if err := term.Restore(g.fd, g.oldState); err != nil {
		return omnerr.New("ptyengine.Restore", omnerr.TerminalMode, err)
	}
	return nil
}

// WatchResize installs a SIGWINCH handler that propagates the controlling
// terminal's size to p for as long as stop is not closed. It fires once
// immediately so the child starts with the correct size.
func WatchResize(p *Pty, ttyFd int, stop <-chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	propagate := func() {
		w, h, err := term.GetSize(ttyFd)
		if err != nil {
			return
		}
		_ = p.SetWindowSize(uint16(h), uint16(w))
	}
	propagate()
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-stop:
				return
			case <-ch:
				propagate()
			}
		}
	}()
}

// TerminalSize returns the current size of fd, defaulting to 80x24 when fd
// is not a terminal (e.g. output is piped).
func TerminalSize(fd int) (cols, rows uint16) {
	if !term.IsTerminal(fd) {
		return 80, 24
	}
	w, h, err := term.GetSize(fd)
	if err != nil {
		return 80, 24
	}
	return uint16(w), uint16(h)
}

// ErrNotATerminal reports that stdin is not a terminal, for callers that
// require a controlling terminal. No package in this module currently
// returns or checks it.
var ErrNotATerminal = fmt.Errorf("ptyengine: stdin is not a terminal")
