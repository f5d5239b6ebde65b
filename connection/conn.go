package connection

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
)

// MaxLineSize is the longest frame accepted on a line connection.
const MaxLineSize = 64 * 1024

// ErrClosed is returned by writes on a connection that was closed locally.
var ErrClosed = errors.New("connection closed")

// Conn is one framed, bidirectional connection carrying protocol lines.
// ReadLine must be called from a single goroutine; WriteLine and Close are
// safe for concurrent use.
type Conn interface {
	// ReadLine blocks for the next frame without its terminator. It returns
	// io.EOF when the peer closed the connection.
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

type lineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewLineConn frames a stream connection as "\n"-terminated lines.
func NewLineConn(conn net.Conn) Conn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	return &lineConn{
		conn:    conn,
		scanner: scanner,
		closed:  make(chan struct{}),
	}
}

func (c *lineConn) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			if c.isClosed() {
				return "", ErrClosed
			}
			return "", err
		}
		return "", io.EOF
	}
	return c.scanner.Text(), nil
}

func (c *lineConn) WriteLine(line string) error {
	if c.isClosed() {
		return ErrClosed
	}
	// 改行は1フレームにつき1つだけ
	line = strings.TrimRight(line, "\r\n")

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *lineConn) Close() error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *lineConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *lineConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Host strips the port from a remote address when there is one.
func Host(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
