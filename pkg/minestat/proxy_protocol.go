package minestat

import (
	"errors"
	"io"
	"net"

	"github.com/pires/go-proxyproto"
)

var errProxyProtocolNotTCP = errors.New("proxy protocol requires a tcp connection")

// writeProxyProtocolHeader announces the local end of c as the client.
func writeProxyProtocolHeader(c net.Conn) error {
	return writeProxyProtocolHeaderTo(c, c.LocalAddr(), c.RemoteAddr())
}

func writeProxyProtocolHeaderTo(w io.Writer, src, dst net.Addr) error {
	srcAddr, ok := src.(*net.TCPAddr)
	if !ok {
		return errProxyProtocolNotTCP
	}

	dstAddr, ok := dst.(*net.TCPAddr)
	if !ok {
		return errProxyProtocolNotTCP
	}

	tp := proxyproto.TCPv4
	if srcAddr.IP.To4() == nil || dstAddr.IP.To4() == nil {
		tp = proxyproto.TCPv6
	}

	header := &proxyproto.Header{
		Version:           2,
		Command:           proxyproto.PROXY,
		TransportProtocol: tp,
		SourceAddr:        srcAddr,
		DestinationAddr:   dstAddr,
	}

	if _, err := header.WriteTo(w); err != nil {
		return err
	}

	return nil
}
