// Package drm owns a KMS dumb buffer on a DRI device and exposes it as a
// linear pixel sink. Only the mode-setting subset the terminal needs is
// wrapped: resources, connector, encoder, dumb-buffer creation, SetCrtc,
// and DirtyFB.
package drm

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultPath is the DRI device the terminal opens.
const DefaultPath = "/dev/dri/card0"

const (
	depth = 24
	bpp   = 32
)

// ioctl request numbers from the DRM uapi ('d' type).
const (
	nrGetCap           = 0x0C
	nrModeGetResources = 0xA0
	nrModeSetCrtc      = 0xA2
	nrModeGetEncoder   = 0xA6
	nrModeGetConnector = 0xA7
	nrModeAddFB        = 0xAE
	nrModeRmFB         = 0xAF
	nrModeDirtyFB      = 0xB1
	nrModeCreateDumb   = 0xB2
	nrModeMapDumb      = 0xB3
	nrModeDestroyDumb  = 0xB4
)

const capDumbBuffer = 0x1

const connectionConnected = 1

type getCap struct {
	capability uint64
	value      uint64
}

type modeRes struct {
	fbIDPtr        uint64
	crtcIDPtr      uint64
	connectorIDPtr uint64
	encoderIDPtr   uint64
	countFBs       uint32
	countCRTCs     uint32
	countConns     uint32
	countEncoders  uint32
	minWidth       uint32
	maxWidth       uint32
	minHeight      uint32
	maxHeight      uint32
}

type modeInfo struct {
	clock      uint32
	hdisplay   uint16
	hsyncStart uint16
	hsyncEnd   uint16
	htotal     uint16
	hskew      uint16
	vdisplay   uint16
	vsyncStart uint16
	vsyncEnd   uint16
	vtotal     uint16
	vscan      uint16
	vrefresh   uint32
	flags      uint32
	typ        uint32
	name       [32]byte
}

type getConnector struct {
	encodersPtr     uint64
	modesPtr        uint64
	propsPtr        uint64
	propValuesPtr   uint64
	countModes      uint32
	countProps      uint32
	countEncoders   uint32
	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32
	connection      uint32
	mmWidth         uint32
	mmHeight        uint32
	subpixel        uint32
	pad             uint32
}

type getEncoder struct {
	encoderID      uint32
	encoderType    uint32
	crtcID         uint32
	possibleCRTCs  uint32
	possibleClones uint32
}

type crtc struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x                uint32
	y                uint32
	gammaSize        uint32
	modeValid        uint32
	mode             modeInfo
}

type createDumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type mapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type destroyDumb struct {
	handle uint32
}

type fbCmd struct {
	fbID   uint32
	width  uint32
	height uint32
	pitch  uint32
	bpp    uint32
	depth  uint32
	handle uint32
}

type clipRect struct {
	x1 uint16
	y1 uint16
	x2 uint16
	y2 uint16
}

type fbDirtyCmd struct {
	fbID     uint32
	flags    uint32
	color    uint32
	numClips uint32
	clipsPtr uint64
}

func iowr(nr, size uintptr) uintptr {
	return 3<<30 | size<<16 | 'd'<<8 | nr
}

func ioctl(fd int, nr uintptr, arg unsafe.Pointer, size uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), iowr(nr, size), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Device is a mode-set DRI device with one mapped dumb buffer.
type Device struct {
	file   *os.File
	width  int
	height int
	pitch  int
	size   uint64
	handle uint32
	fbID   uint32
	crtcID uint32
	connID uint32
	mode   modeInfo
	buf    []byte
}

// Open initialises the first connected connector on the DRI device at
// path, creates a dumb buffer for its preferred mode, maps it, and points
// the CRTC at it.
func Open(path string) (*Device, error) {
	if path == "" {
		path = DefaultPath
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("drm: open %s: %w", path, err)
	}
	d := &Device{file: f}
	if err := d.init(); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) fd() int { return int(d.file.Fd()) }

func (d *Device) init() error {
	dumb := getCap{capability: capDumbBuffer}
	if err := ioctl(d.fd(), nrGetCap, unsafe.Pointer(&dumb), unsafe.Sizeof(dumb)); err != nil || dumb.value == 0 {
		return fmt.Errorf("drm: no dumb buffer support (err=%v)", err)
	}

	if err := d.findConnector(); err != nil {
		return err
	}
	if err := d.setupFramebuffer(); err != nil {
		return err
	}
	return d.Acquire()
}

// findConnector walks the card resources for the first connected
// connector with at least one mode and resolves its encoder's CRTC.
func (d *Device) findConnector() error {
	var res modeRes
	if err := ioctl(d.fd(), nrModeGetResources, unsafe.Pointer(&res), unsafe.Sizeof(res)); err != nil {
		return fmt.Errorf("drm: get resources: %w", err)
	}
	if res.countConns == 0 {
		return fmt.Errorf("drm: no connectors")
	}
	conns := make([]uint32, res.countConns)
	crtcs := make([]uint32, res.countCRTCs+1)
	fbs := make([]uint32, res.countFBs+1)
	encs := make([]uint32, res.countEncoders+1)
	res.connectorIDPtr = uint64(uintptr(unsafe.Pointer(&conns[0])))
	res.crtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
	res.fbIDPtr = uint64(uintptr(unsafe.Pointer(&fbs[0])))
	res.encoderIDPtr = uint64(uintptr(unsafe.Pointer(&encs[0])))
	if err := ioctl(d.fd(), nrModeGetResources, unsafe.Pointer(&res), unsafe.Sizeof(res)); err != nil {
		return fmt.Errorf("drm: get resources: %w", err)
	}

	for _, id := range conns {
		conn := getConnector{connectorID: id}
		if err := ioctl(d.fd(), nrModeGetConnector, unsafe.Pointer(&conn), unsafe.Sizeof(conn)); err != nil {
			continue
		}
		if conn.connection != connectionConnected || conn.countModes == 0 {
			continue
		}
		modes := make([]modeInfo, conn.countModes)
		connEncs := make([]uint32, conn.countEncoders+1)
		props := make([]uint32, conn.countProps+1)
		propVals := make([]uint64, conn.countProps+1)
		conn.modesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
		conn.encodersPtr = uint64(uintptr(unsafe.Pointer(&connEncs[0])))
		conn.propsPtr = uint64(uintptr(unsafe.Pointer(&props[0])))
		conn.propValuesPtr = uint64(uintptr(unsafe.Pointer(&propVals[0])))
		if err := ioctl(d.fd(), nrModeGetConnector, unsafe.Pointer(&conn), unsafe.Sizeof(conn)); err != nil {
			continue
		}
		if conn.connection != connectionConnected || conn.countModes == 0 {
			continue
		}

		enc := getEncoder{encoderID: conn.encoderID}
		if err := ioctl(d.fd(), nrModeGetEncoder, unsafe.Pointer(&enc), unsafe.Sizeof(enc)); err != nil {
			continue
		}

		d.connID = conn.connectorID
		d.crtcID = enc.crtcID
		d.mode = modes[0]
		d.width = int(modes[0].hdisplay)
		d.height = int(modes[0].vdisplay)
		return nil
	}
	return fmt.Errorf("drm: no connected connector with modes")
}

// setupFramebuffer creates, registers, and maps the dumb buffer.
func (d *Device) setupFramebuffer() error {
	creq := createDumb{
		width:  uint32(d.width),
		height: uint32(d.height),
		bpp:    bpp,
	}
	if err := ioctl(d.fd(), nrModeCreateDumb, unsafe.Pointer(&creq), unsafe.Sizeof(creq)); err != nil {
		return fmt.Errorf("drm: create dumb buffer: %w", err)
	}
	d.handle = creq.handle
	d.pitch = int(creq.pitch)
	d.size = creq.size

	fb := fbCmd{
		width:  uint32(d.width),
		height: uint32(d.height),
		pitch:  creq.pitch,
		bpp:    bpp,
		depth:  depth,
		handle: creq.handle,
	}
	if err := ioctl(d.fd(), nrModeAddFB, unsafe.Pointer(&fb), unsafe.Sizeof(fb)); err != nil {
		return fmt.Errorf("drm: add framebuffer: %w", err)
	}
	d.fbID = fb.fbID

	mreq := mapDumb{handle: creq.handle}
	if err := ioctl(d.fd(), nrModeMapDumb, unsafe.Pointer(&mreq), unsafe.Sizeof(mreq)); err != nil {
		return fmt.Errorf("drm: map dumb buffer: %w", err)
	}
	buf, err := unix.Mmap(d.fd(), int64(mreq.offset), int(d.size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("drm: mmap framebuffer: %w", err)
	}
	d.buf = buf
	return nil
}

// Acquire points the CRTC at our framebuffer. Called at start and again
// when the terminal regains the virtual console.
func (d *Device) Acquire() error {
	conn := d.connID
	c := crtc{
		setConnectorsPtr: uint64(uintptr(unsafe.Pointer(&conn))),
		countConnectors:  1,
		crtcID:           d.crtcID,
		fbID:             d.fbID,
		modeValid:        1,
		mode:             d.mode,
	}
	if err := ioctl(d.fd(), nrModeSetCrtc, unsafe.Pointer(&c), unsafe.Sizeof(c)); err != nil {
		return fmt.Errorf("drm: set crtc: %w", err)
	}
	return nil
}

// Width returns the display width in pixels.
func (d *Device) Width() int { return d.width }

// Height returns the display height in pixels.
func (d *Device) Height() int { return d.height }

// Stride returns the bytes per buffer row.
func (d *Device) Stride() int { return d.pitch }

// BytesPerPixel returns the pixel size in bytes.
func (d *Device) BytesPerPixel() int { return bpp / 8 }

// Buffer returns the mapped framebuffer.
func (d *Device) Buffer() []byte { return d.buf }

// Commit flushes a rectangle to the display. Drivers without dirty-fb
// support scan out from the dumb buffer directly, so errors are ignored.
func (d *Device) Commit(x1, y1, x2, y2 int) {
	clip := clipRect{
		x1: uint16(clampU16(x1)),
		y1: uint16(clampU16(y1)),
		x2: uint16(clampU16(x2)),
		y2: uint16(clampU16(y2)),
	}
	cmd := fbDirtyCmd{
		fbID:     d.fbID,
		numClips: 1,
		clipsPtr: uint64(uintptr(unsafe.Pointer(&clip))),
	}
	_ = ioctl(d.fd(), nrModeDirtyFB, unsafe.Pointer(&cmd), unsafe.Sizeof(cmd))
}

// Close unmaps and releases the buffer and device.
func (d *Device) Close() error {
	if d.buf != nil {
		_ = unix.Munmap(d.buf)
		d.buf = nil
	}
	if d.fbID != 0 {
		fb := d.fbID
		_ = ioctl(d.fd(), nrModeRmFB, unsafe.Pointer(&fb), unsafe.Sizeof(fb))
	}
	if d.handle != 0 {
		dreq := destroyDumb{handle: d.handle}
		_ = ioctl(d.fd(), nrModeDestroyDumb, unsafe.Pointer(&dreq), unsafe.Sizeof(dreq))
	}
	return d.file.Close()
}

func clampU16(v int) int {
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return v
}
