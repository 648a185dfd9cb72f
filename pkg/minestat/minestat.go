package minestat

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/haveachin/minestat/pkg/minestat/protocol"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
)

const (
	DefaultPort            = 25565
	DefaultTimeout         = 10 * time.Second
	DefaultProtocolVersion = protocol.Version1_20_2
)

var errSOCKS5NoContext = errors.New("socks5 dialer does not support contexts")

// Dialer opens the connection to the server. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Config struct {
	Timeout           time.Duration     `yaml:"timeout"`
	ProtocolVersion   protocol.Version  `yaml:"protocolVersion"`
	SendProxyProtocol bool              `yaml:"sendProxyProtocol"`
	SOCKS5Addr        string            `yaml:"socks5"`
	MeasureLatency    bool              `yaml:"measureLatency"`
	MaxResponseSize   datasize.ByteSize `yaml:"maxResponseSize"`

	Dialer Dialer `yaml:"-"`
}

type ConfigFunc func(cfg *Config)

func WithTimeout(d time.Duration) ConfigFunc {
	return func(cfg *Config) {
		cfg.Timeout = d
	}
}

func WithProtocolVersion(v protocol.Version) ConfigFunc {
	return func(cfg *Config) {
		cfg.ProtocolVersion = v
	}
}

// WithProxyProtocol sends a PROXY protocol v2 header before the handshake.
func WithProxyProtocol(send bool) ConfigFunc {
	return func(cfg *Config) {
		cfg.SendProxyProtocol = send
	}
}

// WithSOCKS5 dials every server through the SOCKS5 proxy at addr.
func WithSOCKS5(addr string) ConfigFunc {
	return func(cfg *Config) {
		cfg.SOCKS5Addr = addr
	}
}

// WithLatency measures the round trip time with a ping after the status response.
func WithLatency(measure bool) ConfigFunc {
	return func(cfg *Config) {
		cfg.MeasureLatency = measure
	}
}

func WithMaxResponseSize(size datasize.ByteSize) ConfigFunc {
	return func(cfg *Config) {
		cfg.MaxResponseSize = size
	}
}

func WithDialer(d Dialer) ConfigFunc {
	return func(cfg *Config) {
		cfg.Dialer = d
	}
}

func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		ProtocolVersion: DefaultProtocolVersion,
		MaxResponseSize: 2 * datasize.MB,
	}
}

type Result struct {
	Status ServerStatus
	// Latency is only set if the Pinger measures latency.
	Latency time.Duration
}

// Pinger queries servers for their status. It holds no per-query state and is
// safe for concurrent use.
type Pinger struct {
	Logger *zap.Logger

	cfg    Config
	dialer Dialer
}

func New(fns ...ConfigFunc) (*Pinger, error) {
	cfg := DefaultConfig()
	for _, fn := range fns {
		fn(&cfg)
	}

	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Pinger, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	if cfg.MaxResponseSize == 0 {
		cfg.MaxResponseSize = def.MaxResponseSize
	}

	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = def.ProtocolVersion
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	if cfg.SOCKS5Addr != "" {
		forward, ok := dialer.(proxy.Dialer)
		if !ok {
			forward = proxy.Direct
		}

		d, err := proxy.SOCKS5("tcp", cfg.SOCKS5Addr, nil, forward)
		if err != nil {
			return nil, err
		}

		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, errSOCKS5NoContext
		}
		dialer = cd
	}

	return &Pinger{
		Logger: zap.NewNop(),
		cfg:    cfg,
		dialer: dialer,
	}, nil
}

func (p *Pinger) Config() Config {
	return p.cfg
}

// Query asks the server at address:port for its status. The whole query,
// including the dial, is bounded by the configured timeout and by ctx.
// Failures are of type *QueryError.
func (p *Pinger) Query(ctx context.Context, address string, port int) (Result, error) {
	if port < 1 || port > 65535 {
		return Result{}, newQueryError(StageConnect, ErrConnection, ErrInvalidPort)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	logger := p.Logger.With(logTarget(address, port)...)
	logger.Debug("dialing server")

	rc, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		logger.Debug("failed to dial server", zap.Error(err))
		return Result{}, contextError(ctx, wrapError(StageConnect, err))
	}

	return p.queryConn(ctx, logger, rc, address, uint16(port))
}

// QueryConn runs the status exchange over an already connected c.
// The address and port are the ones sent in the handshake. QueryConn takes
// ownership of c and closes it before returning.
func (p *Pinger) QueryConn(ctx context.Context, c net.Conn, address string, port uint16) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	logger := p.Logger.With(logTarget(address, int(port))...)
	return p.queryConn(ctx, logger, c, address, port)
}

func (p *Pinger) queryConn(ctx context.Context, logger *zap.Logger, rc net.Conn, address string, port uint16) (Result, error) {
	c := newConn(rc)
	defer c.Close()

	stop := closeOnDone(ctx, c)
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.SetDeadline(deadline); err != nil {
			return Result{}, wrapError(StageConnect, err)
		}
	}

	logger = logger.With(logConn(c)...).With(
		zap.String("protocolVersion", p.cfg.ProtocolVersion.Name()),
	)
	res, err := p.exchange(c, address, port)
	if err != nil {
		err = contextError(ctx, err)
		logger.Debug("status query failed", zap.Error(err))
		return Result{}, err
	}

	logger.Debug("received status", zap.Duration("latency", res.Latency))
	return res, nil
}

func (p *Pinger) exchange(c *conn, address string, port uint16) (Result, error) {
	if p.cfg.SendProxyProtocol {
		if err := writeProxyProtocolHeader(c); err != nil {
			return Result{}, wrapError(StageHandshake, err)
		}
	}

	if err := WriteHandshake(c, address, port, p.cfg.ProtocolVersion); err != nil {
		return Result{}, wrapError(StageHandshake, err)
	}

	if err := WriteStatusRequest(c); err != nil {
		return Result{}, wrapError(StageRequest, err)
	}

	if err := c.Flush(); err != nil {
		return Result{}, wrapError(StageRequest, err)
	}

	status, err := ReadStatusResponse(c, int(p.cfg.MaxResponseSize.Bytes()))
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Status: status,
	}

	if p.cfg.MeasureLatency {
		latency, err := Ping(c, time.Now().UnixMilli())
		if err != nil {
			return Result{}, wrapError(StagePing, err)
		}
		res.Latency = latency
	}

	return res, nil
}

// closeOnDone closes c as soon as ctx is done so that blocked reads return.
// The returned func stops the watcher.
func closeOnDone(ctx context.Context, c net.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()
	return func() {
		close(done)
	}
}

// contextError replaces the cause of an I/O failure with the context error
// if the context ended.
func contextError(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		return err
	}

	var qErr *QueryError
	if !errors.As(err, &qErr) {
		return newQueryError(StageConnect, errorKind(ctxErr), ctxErr)
	}

	// Decode failures are not caused by the context.
	if qErr.Kind != ErrConnection && qErr.Kind != ErrTimeout {
		return qErr
	}

	return newQueryError(qErr.Stage, errorKind(ctxErr), ctxErr)
}

// Query asks the server at address:port for its status using the default
// configuration and the given timeout.
func Query(ctx context.Context, address string, port int, timeout time.Duration) (ServerStatus, error) {
	p, err := New(WithTimeout(timeout))
	if err != nil {
		return nil, err
	}

	res, err := p.Query(ctx, address, port)
	if err != nil {
		return nil, err
	}
	return res.Status, nil
}
