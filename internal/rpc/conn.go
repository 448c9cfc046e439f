// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sync"

	"github.com/hashicorp/go-uuid"
	lsctx "github.com/tolstoyevsky/shirow/internal/context"
	"github.com/tolstoyevsky/shirow/internal/logging"
	"github.com/tolstoyevsky/shirow/internal/scheduler"
	"github.com/tolstoyevsky/shirow/internal/telemetry"
	"github.com/tolstoyevsky/shirow/internal/token"
	"golang.org/x/time/rate"
)

type ConnOptions struct {
	Identity   *token.Identity
	RemoteAddr string
	// Codec defaults to JSONCodec.
	Codec     Codec
	Scheduler *scheduler.Scheduler
	Logger    *log.Logger
	Metrics   *telemetry.Metrics

	// CallRate limits calls per second; zero means unlimited.
	CallRate  float64
	CallBurst int
}

// Conn is one admitted client connection.
type Conn struct {
	id         string
	identity   *token.Identity
	remoteAddr string

	transport Transport
	codec     Codec
	registry  *Registry
	service   Service

	sched   *scheduler.Scheduler
	logger  *log.Logger
	rpcLog  *callLogger
	metrics *telemetry.Metrics
	limiter *rate.Limiter

	ctx      context.Context
	cancelFn context.CancelFunc

	sendMu      sync.Mutex
	closeOnce   sync.Once
	closeErr    error
	destroyOnce sync.Once
}

func NewConn(ctx context.Context, t Transport, svc Service, opts ConnOptions) (*Conn, error) {
	if opts.Identity == nil {
		return nil, errors.New("connection has no identity")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("connection has no scheduler")
	}
	registry := svc.Procedures()
	if registry == nil {
		return nil, errors.New("service has no procedures")
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	c := &Conn{
		id:         id,
		identity:   opts.Identity,
		remoteAddr: opts.RemoteAddr,
		transport:  t,
		codec:      opts.Codec,
		registry:   registry,
		service:    svc,
		sched:      opts.Scheduler,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if c.codec == nil {
		c.codec = JSONCodec{}
	}
	if c.logger == nil {
		c.logger = logging.NopLogger()
	}
	if c.metrics == nil {
		c.metrics = telemetry.NewMetrics(nil)
	}
	if opts.CallRate > 0 {
		burst := opts.CallBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.CallRate), burst)
	}
	c.rpcLog = &callLogger{logger: c.logger, codec: c.codec}

	ctx = lsctx.WithConnectionID(ctx, id)
	ctx = lsctx.WithRemoteAddr(ctx, opts.RemoteAddr)
	c.ctx, c.cancelFn = context.WithCancel(ctx)

	if l, ok := svc.(loggable); ok {
		l.SetLogger(c.logger)
	}

	return c, nil
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Identity() *token.Identity {
	return c.identity
}

func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Conn) Service() Service {
	return c.service
}

// Context is done once the connection is closed.
func (c *Conn) Context() context.Context {
	return c.ctx
}

func (c *Conn) Scheduler() *scheduler.Scheduler {
	return c.sched
}

func (c *Conn) Logger() *log.Logger {
	return c.logger
}

// Serve reads calls until the transport closes or the context passed
// to NewConn is done. Calls still in flight are abandoned.
func (c *Conn) Serve() error {
	c.metrics.ConnectionOpened()
	c.logger.Printf("Connection %s of %s from %s opened", c.id, c.identity, c.remoteAddr)

	defer func() {
		c.metrics.ConnectionClosed()
		c.logger.Printf("Connection %s of %s closed", c.id, c.identity)
	}()
	defer c.destroy()
	defer c.Close()

	// close the transport when the owner goes away to unblock Recv
	stop := context.AfterFunc(c.ctx, func() { c.Close() })
	defer stop()

	err := c.create()
	if err != nil {
		return err
	}

	for {
		data, err := c.transport.Recv(c.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || c.ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handle(data)
	}
}

// Close cancels every call of the connection and closes the transport.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancelFn()
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}

func (c *Conn) create() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("service create hook panicked: %v", r)
			c.logger.Printf("[ERROR] Connection %s: %s\n%s", c.id, err, debug.Stack())
		}
	}()
	c.service.Create(c)
	return nil
}

func (c *Conn) destroy() {
	c.destroyOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Printf("[ERROR] Connection %s: service destroy hook panicked: %v\n%s",
					c.id, r, debug.Stack())
			}
		}()
		c.service.Destroy(c)
	})
}

func (c *Conn) send(ctx context.Context, name string, f *Frame) error {
	data, err := c.encode(f)
	if err != nil {
		return err
	}
	return c.write(ctx, name, f, data)
}

func (c *Conn) encode(f *Frame) ([]byte, error) {
	data, err := c.codec.EncodeFrame(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

func (c *Conn) write(ctx context.Context, name string, f *Frame, data []byte) error {
	if c.ctx.Err() != nil {
		return ErrConnClosed
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.rpcLog.LogFrame(c.id, name, f)
	switch {
	case f.IsError:
		c.metrics.Frame(telemetry.FrameError)
	case f.EOD:
		c.metrics.Frame(telemetry.FrameFinal)
	default:
		c.metrics.Frame(telemetry.FrameContinue)
	}

	err := c.transport.Send(ctx, data)
	if err != nil && c.ctx.Err() != nil {
		return ErrConnClosed
	}
	return err
}
