// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/cli"
	"github.com/tolstoyevsky/shirow/internal/admission"
	lsctx "github.com/tolstoyevsky/shirow/internal/context"
	"github.com/tolstoyevsky/shirow/internal/demo"
	"github.com/tolstoyevsky/shirow/internal/logging"
	"github.com/tolstoyevsky/shirow/internal/process"
	"github.com/tolstoyevsky/shirow/internal/scheduler"
	"github.com/tolstoyevsky/shirow/internal/server"
	"github.com/tolstoyevsky/shirow/internal/settings"
	"github.com/tolstoyevsky/shirow/internal/telemetry"
	"github.com/tolstoyevsky/shirow/internal/tokenstore"
	"go.opentelemetry.io/otel/attribute"
)

// memoryStoreCleanupInterval is how often expired entries
// are evicted from the in-memory token store.
const memoryStoreCleanupInterval = time.Minute

const tracingShutdownTimeout = 5 * time.Second

type ServeCommand struct {
	Ui      cli.Ui
	Version string

	// flags
	configPath string
	cpuProfile string
	memProfile string
}

func (c *ServeCommand) flags() *flag.FlagSet {
	fs := defaultFlagSet("serve")

	fs.StringVar(&c.configPath, "config", settings.DefaultConfigFile, "path to the HCL configuration file")
	fs.String("address", "", "address to listen on")
	fs.Int("port", settings.DefaultPort, "port number to serve WebSocket connections on")
	fs.Int("tcp-port", 0, "port number to serve framed TCP connections on (disabled if 0)")
	fs.String("token-key", "", "key used to verify tokens")
	fs.String("token-key-file", "", "path to a file holding the key used to verify tokens")
	fs.String("token-algorithm", "", "algorithm tokens are signed with (defaults to HS256)")
	fs.Bool("allow-mock-token", false, "admit the mock token as user 1 (for development only)")
	fs.String("allowed-origins", "", "comma separated origin patterns accepted for WebSocket connections")
	fs.Float64("call-rate", 0, "calls per second allowed on a single connection (unlimited if 0)")
	fs.Int("call-burst", 0, "calls allowed in a single burst")
	fs.String("allowed-commands", "", "comma separated commands procedures may start (none if empty)")
	fs.String("log-file", "", "path to a file to log into with support "+
		"for variables (e.g. timestamp, pid, ppid) via Go template syntax {{ varName }}")
	fs.StringVar(&c.cpuProfile, "cpuprofile", "", "file into which to write CPU profile (if not empty)"+
		" with support for variables (e.g. timestamp, pid, ppid) via Go template"+
		" syntax {{ varName }}")
	fs.StringVar(&c.memProfile, "memprofile", "", "file into which to write memory profile (if not empty)"+
		" with support for variables (e.g. timestamp, pid, ppid) via Go template"+
		" syntax {{ varName }}")

	fs.Usage = func() { c.Ui.Error(c.Help()) }

	return fs
}

func (c *ServeCommand) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s", err))
		return 1
	}

	opts, err := loadOptions(f, c.configPath, "cpuprofile", "memprofile")
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Invalid configuration: %s", err))
		return 1
	}

	if c.cpuProfile != "" {
		stop, err := writeCpuProfileInto(c.cpuProfile)
		defer stop()
		if err != nil {
			c.Ui.Error(err.Error())
			return 1
		}
	}

	if c.memProfile != "" {
		defer writeMemoryProfileInto(c.memProfile)
	}

	var logger *log.Logger
	if opts.LogFile != "" {
		fl, err := logging.NewFileLogger(opts.LogFile)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to setup file logging: %s", err))
			return 1
		}
		defer fl.Close()

		logger = fl.Logger()
	} else {
		logger = logging.NewLogger(os.Stderr)
	}

	ctx, cancelFunc := lsctx.WithSignalCancel(context.Background(), logger,
		func() { os.Exit(1) }, syscall.SIGINT, syscall.SIGTERM)
	defer cancelFunc()

	logger.Printf("Starting shirow %s", c.Version)
	ctx = lsctx.WithServerVersion(ctx, c.Version)

	if tr := opts.Tracing; tr != nil {
		shutdown, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
			Exporter:    tr.Exporter,
			Endpoint:    tr.Endpoint,
			Insecure:    tr.Insecure,
			SampleRatio: tr.SampleRatio,
		}, []attribute.KeyValue{
			attribute.String("service.version", c.Version),
		})
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to set up tracing: %s", err))
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Printf("[ERROR] Failed to flush spans: %s", err)
			}
		}()
		logger.Printf("Exporting spans via %s", tr.Exporter)
	}

	sched := scheduler.NewScheduler()
	sched.SetLogger(logger)
	sched.Start(ctx)
	defer sched.Stop()

	store, closeStore, err := openTokenStore(ctx, opts.TokenStore, sched)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to open token store: %s", err))
		return 1
	}
	defer closeStore()

	key, err := opts.Key()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	if len(key) == 0 {
		logger.Println("[WARN] No token key configured, every connection will be refused")
	}
	if opts.AllowMockToken {
		logger.Println("[WARN] The mock token is accepted, do not use this in production")
	}

	gate, err := admission.NewGate(admission.Options{
		Key:            key,
		Algorithm:      opts.TokenAlgorithm,
		AllowMockToken: opts.AllowMockToken,
		Store:          store,
	})
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to set up admission: %s", err))
		return 1
	}
	gate.SetLogger(logger)

	executor := process.NewExecutor()
	executor.SetLogger(logger)
	executor.SetAllowedCommands(opts.AllowedCommands...)
	if len(opts.AllowedCommands) == 0 {
		logger.Println("No `allowed_commands` configured, procedures may not start any command")
	}

	srv, err := server.NewServer(ctx, gate, sched, demo.NewServiceFactory(executor), server.Options{
		OriginPatterns: opts.AllowedOrigins,
		ReadLimit:      opts.ReadLimit,
		CallRate:       opts.CallRate,
		CallBurst:      opts.CallBurst,
	})
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to create server: %s", err))
		return 1
	}
	srv.SetLogger(logger)

	tcpErr := make(chan error, 1)
	if opts.TCPPort != 0 {
		go func() {
			err := srv.StartTCP(hostPort(opts.Address, opts.TCPPort))
			if err != nil {
				logger.Printf("[ERROR] %s", err)
				cancelFunc()
			}
			tcpErr <- err
		}()
	} else {
		tcpErr <- nil
	}

	err = srv.StartAndWait(hostPort(opts.Address, opts.Port))
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to start server: %s", err))
		return 1
	}
	if err := <-tcpErr; err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to start TCP server: %s", err))
		return 1
	}

	var sigErr *lsctx.SignalErr
	if errors.As(context.Cause(ctx), &sigErr) {
		logger.Printf("Stopped: %s", sigErr)
	}

	return 0
}

func hostPort(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}

// openTokenStore returns a nil store when none is configured,
// which leaves admission to the token signature alone.
func openTokenStore(ctx context.Context, cfg *settings.TokenStore, sched *scheduler.Scheduler) (tokenstore.Store, func(), error) {
	nop := func() {}
	if cfg == nil {
		return nil, nop, nil
	}

	switch cfg.Backend {
	case settings.StoreBackendRedis:
		rs := tokenstore.NewRedisStore(tokenstore.RedisOptions{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			rs.Close()
			return nil, nop, err
		}
		return rs, func() { rs.Close() }, nil
	case settings.StoreBackendMemory:
		ms := tokenstore.NewMemoryStore()
		err := sched.Go(ctx, "tokenstore:cleanup", func(ctx context.Context) {
			ticker := time.NewTicker(memoryStoreCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					ms.Cleanup()
				}
			}
		})
		return ms, nop, err
	}

	return nil, nop, fmt.Errorf("unknown token store backend: %q", cfg.Backend)
}

type stopFunc func() error

func writeCpuProfileInto(rawPath string) (stopFunc, error) {
	path, err := logging.ParsePath("cpuprofile-path", rawPath)
	if err != nil {
		return func() error { return nil }, err
	}

	f, err := os.Create(path)
	if err != nil {
		return func() error { return nil }, fmt.Errorf("could not create CPU profile: %s", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		return f.Close, fmt.Errorf("could not start CPU profile: %s", err)
	}

	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}

func writeMemoryProfileInto(rawPath string) error {
	path, err := logging.ParsePath("memprofile-path", rawPath)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %s", err)
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("could not write memory profile: %s", err)
	}

	return nil
}

func (c *ServeCommand) Help() string {
	helpText := `
Usage: shirow serve [options]

` + c.Synopsis() + `

Settings are read from the configuration file first,
flags given on the command line take precedence.

` + helpForFlags(c.flags())

	return strings.TrimSpace(helpText)
}

func (c *ServeCommand) Synopsis() string {
	return "Starts the RPC server"
}
