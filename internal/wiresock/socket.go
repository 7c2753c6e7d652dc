// Package wiresock implements the data-plane Unix socket protocol of
// spec.md §4.3/§6.3: non-blocking connect, a one-byte handshake, a
// switch to blocking mode, and a length-prefixed sample-frame reader.
//
// The single registered I/O watch callback dispatches on a phase tag
// (unexpected/handshake/reading) rather than being reinstalled per
// protocol phase — spec.md §9's "dynamic socket callback slot" design
// note, realized here as a Go type switch over an enum instead of a
// function-pointer slot.
package wiresock

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
)

// ErrProtocolViolation is spec.md §7's "Protocol violation" class:
// malformed handshake, short session-id write, out-of-range sample count,
// end of stream on the data socket, or an unexpected I/O watch fire. A
// partial frame is not a violation: the read waits for the rest.
var ErrProtocolViolation = errors.New("wiresock: protocol violation")

type phase int

const (
	phaseUnexpected phase = iota
	phaseConnecting
	phaseHandshake
	phaseReading
)

// Conn manages one sample-socket connection's lifecycle from connect
// through framed reads. It is not safe for concurrent use; all methods
// and callbacks run on the owning event loop's goroutine.
type Conn struct {
	loop        *el.Loop
	fd          int
	path        string
	sampleSize  int
	maxFrame    int
	phase       phase
	handshakeIn [1]byte

	// onConnected fires once the handshake completes successfully (the
	// socket has been switched to blocking mode).
	onConnected func()
	// onFrameSample fires once per decoded-frame sample payload, in
	// wire order.
	onFrameSample func(sample []byte)
	// onError fires on any protocol violation or I/O error; the Conn
	// closes its fd before calling it.
	onError func(err error)

	readBuf   []byte // accumulation buffer spanning partial frame reads
	sessionID int32
}

// Dial creates a new unconnected Conn bound to path, ready for Connect.
// sampleSize is the wire size of one sample record for the sensor kind
// being read; maxFrame is the inclusive upper bound on samples per
// frame (spec.md §4.3 fixes this at 16, overridable via
// sensorfw.WithMaxFrame for tests against non-conforming stubs).
func Dial(loop *el.Loop, path string, sampleSize, maxFrame int, onConnected func(), onFrameSample func(sample []byte), onError func(err error)) *Conn {
	return &Conn{
		loop:          loop,
		path:          path,
		sampleSize:    sampleSize,
		maxFrame:      maxFrame,
		onConnected:   onConnected,
		onFrameSample: onFrameSample,
		onError:       onError,
	}
}

// Connect opens the socket non-blocking and begins the connect/write/
// handshake sequence, sending sessionID as the 4-byte little-endian
// handshake request once the socket becomes writable. Errors returned
// here are synchronous setup failures (socket()/connect() syscall
// failures); asynchronous failures are reported via onError.
func (c *Conn) Connect(sessionID int32) error {
	c.sessionID = sessionID
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("wiresock: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("wiresock: set nonblocking: %w", err)
	}
	c.fd = fd

	err = unix.Connect(fd, &unix.SockaddrUnix{Name: c.path})
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)
		return fmt.Errorf("wiresock: connect: %w", err)
	}

	c.phase = phaseConnecting
	if regErr := c.loop.RegisterFD(fd, el.EventWrite, c.onEvents); regErr != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("wiresock: register fd: %w", regErr)
	}
	return nil
}

// Close unregisters and closes the socket, if open. Idempotent.
func (c *Conn) Close() {
	if c.fd == 0 && c.phase == phaseUnexpected {
		return
	}
	_ = c.loop.UnregisterFD(c.fd)
	_ = unix.Close(c.fd)
	c.fd = 0
	c.phase = phaseUnexpected
}

func (c *Conn) fail(err error) {
	c.Close()
	if c.onError != nil {
		c.onError(err)
	}
}

// onEvents is the single dynamic callback slot the FD watch invokes;
// it dispatches purely on c.phase.
func (c *Conn) onEvents(events el.IOEvents) {
	switch c.phase {
	case phaseConnecting:
		c.handleConnecting()
	case phaseHandshake:
		c.handleHandshake()
	case phaseReading:
		c.handleReadable()
	default:
		c.fail(fmt.Errorf("%w: I/O watch fired in phase %d", ErrProtocolViolation, c.phase))
	}
}

// handleConnecting verifies the non-blocking connect succeeded, then
// writes the 4-byte little-endian session id handshake request.
func (c *Conn) handleConnecting() {
	serr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		c.fail(fmt.Errorf("wiresock: getsockopt SO_ERROR: %w", err))
		return
	}
	if serr != 0 {
		c.fail(fmt.Errorf("wiresock: connect failed: %w", unix.Errno(serr)))
		return
	}

	buf := []byte{
		byte(c.sessionID),
		byte(c.sessionID >> 8),
		byte(c.sessionID >> 16),
		byte(c.sessionID >> 24),
	}
	n, err := unix.Write(c.fd, buf)
	if err != nil {
		c.fail(fmt.Errorf("wiresock: write session id: %w", err))
		return
	}
	if n != len(buf) {
		c.fail(fmt.Errorf("%w: short write of session id", ErrProtocolViolation))
		return
	}

	c.phase = phaseHandshake
	if err := c.loop.ModifyFD(c.fd, el.EventRead); err != nil {
		c.fail(fmt.Errorf("wiresock: modify fd: %w", err))
	}
}

func (c *Conn) handleHandshake() {
	n, err := unix.Read(c.fd, c.handshakeIn[:])
	if err != nil {
		c.fail(fmt.Errorf("wiresock: read handshake: %w", err))
		return
	}
	if n != 1 || c.handshakeIn[0] != '\n' {
		c.fail(fmt.Errorf("%w: bad handshake byte", ErrProtocolViolation))
		return
	}
	if err := unix.SetNonblock(c.fd, false); err != nil {
		c.fail(fmt.Errorf("wiresock: set blocking: %w", err))
		return
	}
	c.phase = phaseReading
	if c.onConnected != nil {
		c.onConnected()
	}
}

// handleReadable performs one blocking read (bounded, since the watch
// only fired because bytes are available, per spec.md §5) and parses
// as many complete frames as the accumulated buffer contains.
func (c *Conn) handleReadable() {
	chunk := make([]byte, 64*1024)
	n, err := unix.Read(c.fd, chunk)
	if err != nil {
		c.fail(fmt.Errorf("wiresock: read: %w", err))
		return
	}
	if n == 0 {
		c.fail(fmt.Errorf("%w: EOF on data socket", ErrProtocolViolation))
		return
	}
	c.readBuf = append(c.readBuf, chunk[:n]...)

	for {
		if len(c.readBuf) < 4 {
			return
		}
		count := uint32(c.readBuf[0]) | uint32(c.readBuf[1])<<8 | uint32(c.readBuf[2])<<16 | uint32(c.readBuf[3])<<24
		if count < 1 || count > uint32(c.maxFrame) {
			c.fail(fmt.Errorf("%w: out-of-range sample count %d", ErrProtocolViolation, count))
			return
		}
		need := 4 + int(count)*c.sampleSize
		if len(c.readBuf) < need {
			return // wait for the rest of this frame
		}
		samples := c.readBuf[4:need]
		for i := 0; i < int(count); i++ {
			start := i * c.sampleSize
			c.onFrameSample(samples[start : start+c.sampleSize])
		}
		c.readBuf = c.readBuf[need:]
	}
}
