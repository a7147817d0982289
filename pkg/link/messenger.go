package link

import (
	"bytes"
	"context"
	"errors"
	"go.bug.st/serial"
	"k8s.io/klog/v2"
	"net"
	"time"
)

var errReadTimeout = errors.New("read timeout")

var _ Messenger = (*TcpClient)(nil)
var _ Messenger = (*SerialClient)(nil)

// Messenger is one open, terminator framed transport.
type Messenger interface {
	// Send writes one already framed line.
	Send(line []byte) error
	// ReadLine returns the next line without its terminator, or errReadTimeout
	// once deadline passes. Partial input is kept for the next call.
	ReadLine(deadline time.Time) (string, error)
	// Discard drops buffered input.
	Discard()
	Close() error
}

// Dialer opens a Messenger for an address.
type Dialer func(ctx context.Context, addr *Address, terminator string) (Messenger, error)

func Dial(ctx context.Context, addr *Address, terminator string) (Messenger, error) {
	switch addr.Scheme {
	case SchemeSerial:
		port, err := serial.Open(addr.Location, addr.Mode)
		if err != nil {
			klog.V(2).InfoS("Failed to open serial port", "address", addr.Location, "err", err)
			return nil, err
		}
		return NewSerialClient(port, terminator), nil
	default:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr.Location)
		if err != nil {
			klog.V(2).InfoS("Failed to connect", "address", addr.Location, "err", err)
			return nil, err
		}
		return NewTcpClient(conn, terminator), nil
	}
}

type lineBuffer struct {
	terminator []byte
	buf        []byte
	chunk      []byte
	read       func(p []byte, deadline time.Time) (int, error)
}

func newLineBuffer(terminator string, read func(p []byte, deadline time.Time) (int, error)) lineBuffer {
	return lineBuffer{
		terminator: []byte(terminator),
		chunk:      make([]byte, 256),
		read:       read,
	}
}

func (lb *lineBuffer) next() (string, bool) {
	i := bytes.Index(lb.buf, lb.terminator)
	if i < 0 {
		return "", false
	}
	line := string(lb.buf[:i])
	lb.buf = append(lb.buf[:0], lb.buf[i+len(lb.terminator):]...)
	return line, true
}

func (lb *lineBuffer) ReadLine(deadline time.Time) (string, error) {
	for {
		if line, ok := lb.next(); ok {
			return line, nil
		}
		n, err := lb.read(lb.chunk, deadline)
		lb.buf = append(lb.buf, lb.chunk[:n]...)
		if err != nil {
			if line, ok := lb.next(); ok {
				return line, nil
			}
			return "", err
		}
	}
}

func (lb *lineBuffer) Discard() {
	lb.buf = lb.buf[:0]
}

type TcpClient struct {
	lineBuffer
	Tunnel net.Conn
}

func NewTcpClient(conn net.Conn, terminator string) *TcpClient {
	tc := &TcpClient{Tunnel: conn}
	tc.lineBuffer = newLineBuffer(terminator, tc.read)
	return tc
}

func (tc *TcpClient) read(p []byte, deadline time.Time) (int, error) {
	if err := tc.Tunnel.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	n, err := tc.Tunnel.Read(p)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, errReadTimeout
	}
	return n, err
}

func (tc *TcpClient) Send(line []byte) error {
	_, err := tc.Tunnel.Write(line)
	return err
}

func (tc *TcpClient) Close() error {
	return tc.Tunnel.Close()
}

type SerialClient struct {
	lineBuffer
	Port serial.Port
}

func NewSerialClient(port serial.Port, terminator string) *SerialClient {
	sc := &SerialClient{Port: port}
	sc.lineBuffer = newLineBuffer(terminator, sc.read)
	return sc
}

// read maps the serial read timeout, which reports zero bytes without error,
// onto errReadTimeout.
func (sc *SerialClient) read(p []byte, deadline time.Time) (int, error) {
	d := time.Until(deadline)
	if d <= 0 {
		return 0, errReadTimeout
	}
	if err := sc.Port.SetReadTimeout(d); err != nil {
		return 0, err
	}
	n, err := sc.Port.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, errReadTimeout
	}
	return n, nil
}

func (sc *SerialClient) Send(line []byte) error {
	_, err := sc.Port.Write(line)
	return err
}

func (sc *SerialClient) Close() error {
	return sc.Port.Close()
}
