package shell

import (
	"os"
	"os/exec"
	"os/user"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Session manages a pseudo-terminal connection to the child shell
type Session struct {
	cmd      *exec.Cmd
	pty      *os.File
	mu       sync.Mutex
	exited   bool
	exitedMu sync.Mutex
}

// Spawn forks the shell under a new pseudo-terminal sized to the grid.
func Spawn(shell, termName string, cols, lines uint16) (*Session, error) {
	if shell == "" {
		shell = findShell()
	}

	cmd := exec.Command(shell, "-i")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Env = append(os.Environ(),
		"TERM="+termName,
		"SHELL="+shell,
	)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: cols,
		Rows: lines,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		cmd: cmd,
		pty: ptmx,
	}

	go func() {
		cmd.Wait()
		s.exitedMu.Lock()
		s.exited = true
		s.exitedMu.Unlock()
	}()

	return s, nil
}

// findShell picks the user's login shell, falling back to common paths.
func findShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	if u, err := user.Current(); err == nil {
		if shell := passwdShell(u.Username); shell != "" {
			if _, err := os.Stat(shell); err == nil {
				return shell
			}
		}
	}
	for _, shell := range []string{"/bin/bash", "/usr/bin/bash", "/bin/zsh", "/bin/sh"} {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh"
}

// passwdShell reads the user's shell from /etc/passwd
func passwdShell(username string) string {
	data, err := os.ReadFile("/etc/passwd")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) >= 7 && fields[0] == username {
			return fields[6]
		}
	}
	return ""
}

// Read reads from the PTY
func (s *Session) Read(buf []byte) (int, error) {
	return s.pty.Read(buf)
}

// Write writes to the PTY
func (s *Session) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pty.Write(data)
}

// Resize resizes the PTY
func (s *Session) Resize(cols, lines uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pty.Setsize(s.pty, &pty.Winsize{
		Cols: cols,
		Rows: lines,
	})
}

// HasExited returns true if the shell process has exited
func (s *Session) HasExited() bool {
	s.exitedMu.Lock()
	defer s.exitedMu.Unlock()
	return s.exited
}

// Close closes the PTY session
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	return s.pty.Close()
}
