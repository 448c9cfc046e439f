// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func TestTransport_framing(t *testing.T) {
	server, client := net.Pipe()
	tr := New(server, 0)
	t.Cleanup(func() { tr.Close() })

	go func() {
		fmt.Fprintf(client, "Content-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len("secret"), "secret")
		msg := `{"function_name":"say_hello","parameters_list":[],"marker":1}`
		fmt.Fprintf(client, "Content-Length: %d\r\n\r\n%s", len(msg), msg)
	}()

	ctx := context.Background()
	token, err := tr.ReadToken(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if token != "secret" {
		t.Fatalf("unexpected token: %q", token)
	}

	call, err := tr.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(call), `"say_hello"`) {
		t.Fatalf("unexpected call: %s", call)
	}

	done := make(chan string, 1)
	go func() {
		r := bufio.NewReader(client)
		var header strings.Builder
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				done <- err.Error()
				return
			}
			if line == "\r\n" {
				break
			}
			header.WriteString(line)
		}
		body := make([]byte, len(`{"eod":1}`))
		_, err := io.ReadFull(r, body)
		if err != nil {
			done <- err.Error()
			return
		}
		done <- header.String() + string(body)
	}()

	err = tr.Send(ctx, []byte(`{"eod":1}`))
	if err != nil {
		t.Fatal(err)
	}
	got := <-done
	if !strings.Contains(got, "Content-Length: 9") || !strings.HasSuffix(got, `{"eod":1}`) {
		t.Fatalf("unexpected record: %q", got)
	}
}

func TestTransport_tokenTimeout(t *testing.T) {
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	tr := New(server, 0)
	t.Cleanup(func() { tr.Close() })

	_, err := tr.ReadToken(context.Background(), 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestTransport_recordTooLarge(t *testing.T) {
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	tr := New(server, 64)
	t.Cleanup(func() { tr.Close() })

	go fmt.Fprint(client, "Content-Length: 4611686018427387904\r\n\r\n")

	_, err := tr.ReadToken(context.Background(), time.Second)
	var tooLarge *RecordTooLargeErr
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected *RecordTooLargeErr, given: %#v", err)
	}
	if tooLarge.Limit != 64 {
		t.Fatalf("unexpected limit: %d", tooLarge.Limit)
	}

	// the error sticks
	_, err = tr.Recv(context.Background())
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected *RecordTooLargeErr again, given: %#v", err)
	}
}

func TestTransport_recordsWithinLimit(t *testing.T) {
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	tr := New(server, 16)
	t.Cleanup(func() { tr.Close() })

	go func() {
		for _, msg := range []string{"0123456789abcdef", "", "short"} {
			fmt.Fprintf(client, "Content-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(msg), msg)
		}
	}()

	ctx := context.Background()
	for _, expected := range []string{"0123456789abcdef", "", "short"} {
		b, err := tr.Recv(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != expected {
			t.Fatalf("expected %q, given %q", expected, b)
		}
	}
}

func TestTransport_headerLineTooLong(t *testing.T) {
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	tr := New(server, 0)
	t.Cleanup(func() { tr.Close() })

	go fmt.Fprint(client, "X-Padding: "+strings.Repeat("a", 2*MaxHeaderLine))

	_, err := tr.Recv(context.Background())
	if !errors.Is(err, ErrHeaderTooLong) {
		t.Fatalf("expected ErrHeaderTooLong, given: %#v", err)
	}
}
