package minestat

import (
	"bufio"
	"net"
)

type conn struct {
	net.Conn

	r *bufio.Reader
	w *bufio.Writer
}

func newConn(c net.Conn) *conn {
	if c == nil {
		panic("c cannot be nil")
	}

	return &conn{
		Conn: c,
		r:    bufio.NewReader(c),
		w:    bufio.NewWriter(c),
	}
}

func (c *conn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}

func (c *conn) Write(b []byte) (int, error) {
	return c.w.Write(b)
}

func (c *conn) Flush() error {
	return c.w.Flush()
}
