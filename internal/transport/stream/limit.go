// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package stream

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxHeaderLine bounds a single header line of a record.
const MaxHeaderLine = 1024

var ErrHeaderTooLong = errors.New("record header line too long")

type RecordTooLargeErr struct {
	Length string
	Limit  int64
}

func (e *RecordTooLargeErr) Error() string {
	return fmt.Sprintf("record of %s bytes exceeds the limit of %d bytes", e.Length, e.Limit)
}

// limitReader follows the record headers passing through it and fails
// before a record longer than limit reaches the framing.
type limitReader struct {
	r     io.Reader
	limit int64
	err   error

	inBody    bool
	remaining int64
	length    int64
	hasLength bool
	line      []byte
}

func newLimitReader(r io.Reader, limit int64) *limitReader {
	return &limitReader{r: r, limit: limit}
}

func (lr *limitReader) Read(p []byte) (int, error) {
	if lr.err != nil {
		return 0, lr.err
	}

	n, err := lr.r.Read(p)
	if verr := lr.scan(p[:n]); verr != nil {
		lr.err = verr
		return 0, verr
	}
	return n, err
}

func (lr *limitReader) scan(b []byte) error {
	for len(b) > 0 {
		if lr.inBody {
			if int64(len(b)) < lr.remaining {
				lr.remaining -= int64(len(b))
				return nil
			}
			b = b[lr.remaining:]
			lr.remaining = 0
			lr.inBody = false
			continue
		}

		i := 0
		for i < len(b) && b[i] != '\n' {
			i++
		}
		if len(lr.line)+i > MaxHeaderLine {
			return ErrHeaderTooLong
		}
		lr.line = append(lr.line, b[:i]...)
		if i == len(b) {
			return nil
		}
		b = b[i+1:]

		if err := lr.headerLine(strings.TrimRight(string(lr.line), "\r")); err != nil {
			return err
		}
		lr.line = lr.line[:0]
	}
	return nil
}

func (lr *limitReader) headerLine(line string) error {
	if line == "" {
		if lr.hasLength && lr.length > 0 {
			lr.inBody = true
			lr.remaining = lr.length
		}
		lr.hasLength = false
		lr.length = 0
		return nil
	}

	name, value, ok := strings.Cut(line, ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(name), "content-length") {
		return nil
	}
	value = strings.TrimSpace(value)
	size, err := strconv.ParseInt(value, 10, 64)
	if err != nil || size < 0 {
		// left for the framing to reject
		lr.hasLength = false
		return nil
	}
	if size > lr.limit {
		return &RecordTooLargeErr{Length: value, Limit: lr.limit}
	}
	lr.length = size
	lr.hasLength = true
	return nil
}
