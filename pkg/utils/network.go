package utils

import (
	"net"
	"time"
)

// minThroughputBytesPerSecond is the floor throughput (4KB/s) used to scale
// connection deadlines with the amount of data transferred, so large object
// transfers are not cut off by a flat timeout.
const minThroughputBytesPerSecond = 4000

// Listener wraps a net.Listener and applies per-connection read and write
// deadlines that scale with throughput.
type Listener struct {
	net.Listener
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{
		Conn:         c,
		ReadTimeout:  l.ReadTimeout,
		WriteTimeout: l.WriteTimeout,
	}, nil
}

// Conn sets a deadline on every read and write, scaled by cumulative bytes
// transferred so slow-but-progressing transfers survive while stalled
// connections are reaped.
type Conn struct {
	net.Conn
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	bytesRead    int64
	bytesWritten int64
}

func scaledDeadline(timeout time.Duration, transferred int64) time.Duration {
	bytesPerTimeout := int64(float64(minThroughputBytesPerSecond) * timeout.Seconds())
	if bytesPerTimeout <= 0 {
		bytesPerTimeout = 1
	}
	return timeout * time.Duration(transferred/bytesPerTimeout+1)
}

func (c *Conn) Read(b []byte) (count int, e error) {
	if c.ReadTimeout != 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(scaledDeadline(c.ReadTimeout, c.bytesRead))); err != nil {
			return 0, err
		}
	}
	count, e = c.Conn.Read(b)
	if e == nil {
		c.bytesRead += int64(count)
	}
	return
}

func (c *Conn) Write(b []byte) (count int, e error) {
	if c.WriteTimeout != 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(scaledDeadline(c.WriteTimeout, c.bytesWritten))); err != nil {
			return 0, err
		}
	}
	count, e = c.Conn.Write(b)
	if e == nil {
		c.bytesWritten += int64(count)
	}
	return
}

// NewListener listens on addr with the given idle timeout applied to every
// accepted connection. A zero timeout disables deadlines.
func NewListener(addr string, timeout time.Duration) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{
		Listener:     listener,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}, nil
}
