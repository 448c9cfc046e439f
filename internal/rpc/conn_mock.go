// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/jrpc2/channel"
	"github.com/google/go-cmp/cmp"
	"github.com/tolstoyevsky/shirow/internal/scheduler"
	"github.com/tolstoyevsky/shirow/internal/token"
)

const mockFrameTimeout = 5 * time.Second

type connMock struct {
	conn   *Conn
	client channel.Channel
	logger *log.Logger

	frames chan []byte
	served chan error

	closeOnce sync.Once
	serveErr  error
	timedOut  bool
}

// NewConnMock starts a connection serving svc over an in-memory channel
// and returns the client end of it. Options left empty are filled in
// with a running scheduler and the mock identity.
func NewConnMock(t *testing.T, svc Service, opts ConnOptions) *connMock {
	client, server := channel.Direct()

	if opts.Identity == nil {
		opts.Identity = token.MockIdentity()
	}
	if opts.Scheduler == nil {
		sched := scheduler.NewScheduler()
		sched.Start(context.Background())
		t.Cleanup(sched.Stop)
		opts.Scheduler = sched
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
		if testing.Verbose() {
			opts.Logger = testLogger(os.Stdout, "[SERVER] ")
		}
	}

	conn, err := NewConn(context.Background(), ChannelTransport(server), svc, opts)
	if err != nil {
		t.Fatal(err)
	}

	cm := &connMock{
		conn:   conn,
		client: client,
		logger: discardLogger(),
		frames: make(chan []byte, 64),
		served: make(chan error, 1),
	}
	if testing.Verbose() {
		cm.logger = testLogger(os.Stdout, "[CLIENT] ")
	}

	go func() {
		cm.served <- conn.Serve()
	}()
	go func() {
		defer close(cm.frames)
		for {
			b, err := client.Recv()
			if err != nil {
				return
			}
			cm.frames <- b
		}
	}()

	t.Cleanup(func() {
		cm.CloseClient(t)
	})

	return cm
}

func (cm *connMock) Conn() *Conn {
	return cm.conn
}

// Send sends a raw message as is.
func (cm *connMock) Send(t *testing.T, raw string) {
	cm.logger.Printf("Sending %s", raw)
	err := cm.client.Send([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
}

func (cm *connMock) Call(t *testing.T, name string, marker interface{}, params ...interface{}) {
	if params == nil {
		params = []interface{}{}
	}
	b, err := json.Marshal(map[string]interface{}{
		"function_name":   name,
		"parameters_list": params,
		"marker":          marker,
	})
	if err != nil {
		t.Fatal(err)
	}
	cm.Send(t, string(b))
}

// Next returns the next frame the server sent.
func (cm *connMock) Next(t *testing.T) []byte {
	t.Helper()
	select {
	case b, ok := <-cm.frames:
		if !ok {
			t.Fatal("connection closed while waiting for a frame")
		}
		cm.logger.Printf("Received %s", b)
		return b
	case <-time.After(mockFrameTimeout):
		t.Fatal("timed out waiting for a frame")
	}
	return nil
}

// ExpectFrame compares the next frame with expectRaw, ignoring
// formatting differences.
func (cm *connMock) ExpectFrame(t *testing.T, expectRaw string) {
	t.Helper()
	given := cm.Next(t)

	var expected, actual interface{}
	err := json.Unmarshal([]byte(expectRaw), &expected)
	if err != nil {
		t.Fatal(err)
	}
	err = json.Unmarshal(given, &actual)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Fatalf("frame doesn't match.\n%s", diff)
	}
}

// ExpectNoFrame fails if the server sends anything within d.
func (cm *connMock) ExpectNoFrame(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case b, ok := <-cm.frames:
		if ok {
			t.Fatalf("unexpected frame: %s", b)
		}
	case <-time.After(d):
	}
}

// CloseClient closes the client end and waits for Serve to return.
func (cm *connMock) CloseClient(t *testing.T) error {
	cm.closeOnce.Do(func() {
		cm.client.Close()
		select {
		case cm.serveErr = <-cm.served:
		case <-time.After(mockFrameTimeout):
			cm.timedOut = true
		}
	})
	if cm.timedOut {
		t.Fatal("connection did not close")
	}
	return cm.serveErr
}

func discardLogger() *log.Logger {
	return log.New(ioutil.Discard, "", 0)
}

func testLogger(w io.Writer, prefix string) *log.Logger {
	return log.New(w, prefix, log.LstdFlags|log.Lshortfile)
}
