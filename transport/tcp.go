package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fornellas/slogxt/log"
	"go.bug.st/serial"
)

var ErrNotSupported = errors.New("not supported over TCP")

// TCPPort partially implements serial.Port interface over a TCP connection.
type TCPPort struct {
	conn        net.Conn
	readTimeout time.Duration
}

func NewTCPPort(conn net.Conn) *TCPPort {
	return &TCPPort{conn: conn, readTimeout: serial.NoTimeout}
}

func DialTCP(ctx context.Context, address string, timeout time.Duration) (*TCPPort, error) {
	logger := log.MustLogger(ctx)
	logger.Info("Dialing TCP port", "address", address, "timeout", timeout)
	dialer := &net.Dialer{
		Timeout: timeout,
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return nil, errors.Join(
				fmt.Errorf("failed to set TCP no delay: %w", err),
				conn.Close(),
			)
		}
	}
	return NewTCPPort(conn), nil
}

func (tp *TCPPort) SetMode(mode *serial.Mode) error {
	return ErrNotSupported
}

// Read honors SetReadTimeout: on timeout it returns 0 bytes and no error, like serial ports do.
func (tp *TCPPort) Read(p []byte) (n int, err error) {
	deadline := time.Time{}
	if tp.readTimeout != serial.NoTimeout {
		deadline = time.Now().Add(tp.readTimeout)
	}
	if err := tp.conn.SetReadDeadline(deadline); err != nil {
		// Some connections refuse deadlines once closed by the peer, while Read reports io.EOF.
		n, readErr := tp.conn.Read(p)
		if readErr != nil {
			return n, readErr
		}
		return n, err
	}
	n, err = tp.conn.Read(p)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}
	return n, err
}

func (tp *TCPPort) Write(p []byte) (n int, err error) {
	return tp.conn.Write(p)
}

func (tp *TCPPort) Drain() error {
	return ErrNotSupported
}

func (tp *TCPPort) ResetInputBuffer() error {
	return ErrNotSupported
}

func (tp *TCPPort) ResetOutputBuffer() error {
	return ErrNotSupported
}

func (tp *TCPPort) SetDTR(dtr bool) error {
	return ErrNotSupported
}

func (tp *TCPPort) SetRTS(rts bool) error {
	return ErrNotSupported
}

func (tp *TCPPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return nil, ErrNotSupported
}

func (tp *TCPPort) SetReadTimeout(t time.Duration) error {
	tp.readTimeout = t
	return nil
}

func (tp *TCPPort) Close() error {
	return tp.conn.Close()
}

func (tp *TCPPort) Break(time.Duration) error {
	return ErrNotSupported
}
