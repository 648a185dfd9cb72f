package minestat

import (
	"net"

	"go.uber.org/zap"
)

// Field helpers so every query logs the same keys.

func logTarget(address string, port int) []zap.Field {
	return []zap.Field{
		zap.String("serverAddr", address),
		zap.Int("serverPort", port),
	}
}

func logConn(c net.Conn) []zap.Field {
	return []zap.Field{
		zap.String("connNetwork", c.LocalAddr().Network()),
		zap.String("connLocalAddr", c.LocalAddr().String()),
		zap.String("connRemoteAddr", c.RemoteAddr().String()),
	}
}
