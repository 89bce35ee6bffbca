// Package tty owns the controlling virtual console: raw termios, graphics
// mode, and VT_PROCESS switching driven by SIGUSR1.
package tty

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// linux/vt.h and linux/kd.h ioctls.
const (
	vtSetMode = 0x5602
	vtRelDisp = 0x5605

	kdSetMode  = 0x4B3A
	kdText     = 0x00
	kdGraphics = 0x01

	vtAuto    = 0x00
	vtProcess = 0x01

	// VT_ACKACQ acknowledges console acquisition.
	VTAckAcq = 0x02
)

type vtMode struct {
	mode   int8
	waitv  int8
	relsig int16
	acqsig int16
	frsig  int16
}

// Console is the terminal's controlling virtual console in raw graphics
// mode.
type Console struct {
	fd    int
	saved *term.State
}

// Init switches the console on fd (normally stdin) into raw mode, claims
// VT switching via SIGUSR1, and enters graphics mode. Fails when fd is
// not a virtual console.
func Init(fd int) (*Console, error) {
	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("tty: raw mode: %w", err)
	}
	c := &Console{fd: fd, saved: saved}

	vtm := vtMode{
		mode:   vtProcess,
		relsig: int16(unix.SIGUSR1),
		acqsig: int16(unix.SIGUSR1),
		frsig:  int16(unix.SIGUSR1),
	}
	if err := c.ioctlPtr(vtSetMode, unsafe.Pointer(&vtm)); err != nil {
		c.restoreTermios()
		return nil, fmt.Errorf("tty: VT_SETMODE (not a virtual console?): %w", err)
	}
	if err := c.ioctlInt(kdSetMode, kdGraphics); err != nil {
		c.restoreTermios()
		return nil, fmt.Errorf("tty: KDSETMODE (not a virtual console?): %w", err)
	}

	// Hide the kernel's own cursor while we own the display.
	_, _ = unix.Write(fd, []byte("\x1b[?25l"))
	return c, nil
}

// Release hands the console to another VT.
func (c *Console) Release() {
	_ = c.ioctlInt(vtRelDisp, 1)
}

// Acknowledge accepts the console back after a switch.
func (c *Console) Acknowledge() {
	_ = c.ioctlInt(vtRelDisp, VTAckAcq)
}

// Close restores text mode, automatic VT switching, and the saved
// termios. Safe to call on a partially failed console.
func (c *Console) Close() {
	vtm := vtMode{mode: vtAuto}
	_ = c.ioctlPtr(vtSetMode, unsafe.Pointer(&vtm))
	_ = c.ioctlInt(kdSetMode, kdText)
	_, _ = unix.Write(c.fd, []byte("\x1b[?25h"))
	c.restoreTermios()
}

func (c *Console) restoreTermios() {
	if c.saved != nil {
		_ = term.Restore(c.fd, c.saved)
		c.saved = nil
	}
}

func (c *Console) ioctlPtr(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (c *Console) ioctlInt(req uintptr, arg int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// BackgroundDrawRequested reports whether KMSTERM=background (or bg) asks
// for drawing while the console is switched away.
func BackgroundDrawRequested() bool {
	env := os.Getenv("KMSTERM")
	return env == "background" || env == "bg"
}
