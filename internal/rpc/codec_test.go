// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJSONCodec_DecodeCall(t *testing.T) {
	c := JSONCodec{}

	call, err := c.DecodeCall([]byte(`{"function_name":"add","parameters_list":[1,2],"marker":{"z":1,"a":[true]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if call.FunctionName != "add" {
		t.Fatalf("unexpected function name: %q", call.FunctionName)
	}
	if diff := cmp.Diff(Args{float64(1), float64(2)}, call.Arguments); diff != "" {
		t.Fatalf("unexpected arguments: %s", diff)
	}
	if string(call.Marker) != `{"z":1,"a":[true]}` {
		t.Fatalf("marker not kept verbatim: %s", call.Marker)
	}

	call, err = c.DecodeCall([]byte(`{"parameters_list":[],"marker":7}`))
	if !errors.Is(err, ErrMalformedCall) {
		t.Fatalf("expected ErrMalformedCall, given: %#v", err)
	}
	if string(call.Marker) != "7" {
		t.Fatalf("expected marker of malformed call, given: %s", call.Marker)
	}

	_, err = c.DecodeCall([]byte(`{not json`))
	if err == nil || errors.Is(err, ErrMalformedCall) {
		t.Fatalf("expected syntax error, given: %#v", err)
	}

	call, err = c.DecodeCall([]byte(`{"function_name":"say_hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	if call.Arguments.Len() != 0 {
		t.Fatalf("expected no arguments, given %d", call.Arguments.Len())
	}
}

func TestJSONCodec_EncodeFrame(t *testing.T) {
	c := JSONCodec{}

	testCases := []struct {
		frame    *Frame
		expected string
	}{
		{ResultFrame(Marker(`"m"`), "Hello, Shirow!", true), `{"marker":"m","result":"Hello, Shirow!","eod":1}`},
		{ResultFrame(Marker(`{"z":1,"a":2}`), 1, false), `{"marker":{"z":1,"a":2},"result":1,"eod":0}`},
		{ResultFrame(nil, nil, true), `{"marker":null,"result":null,"eod":1}`},
		{ErrorFrame(Marker(`3`), "the x function is undefined"), `{"marker":3,"error":"the x function is undefined"}`},
	}

	for _, tc := range testCases {
		b, err := c.EncodeFrame(tc.frame)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tc.expected {
			t.Fatalf("frame doesn't match.\nexpected: %s\ngiven:    %s", tc.expected, b)
		}
	}
}

func TestCBORCodec(t *testing.T) {
	c, err := NewCBORCodec()
	if err != nil {
		t.Fatal(err)
	}

	data, err := c.EncodeCall("add", map[string]interface{}{"id": "abc"}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	call, err := c.DecodeCall(data)
	if err != nil {
		t.Fatal(err)
	}
	if call.FunctionName != "add" || call.Arguments.Len() != 2 {
		t.Fatalf("unexpected call: %#v", call)
	}
	a, err := call.Arguments.Int(0)
	if err != nil || a != 1 {
		t.Fatalf("expected 1, given %d (%v)", a, err)
	}

	out, err := c.EncodeFrame(ResultFrame(call.Marker, int64(3), true))
	if err != nil {
		t.Fatal(err)
	}
	frame, err := c.DecodeFrame(out)
	if err != nil {
		t.Fatal(err)
	}
	expected := map[string]interface{}{
		"marker": map[string]interface{}{"id": "abc"},
		"result": uint64(3),
		"eod":    uint64(1),
	}
	if diff := cmp.Diff(expected, frame); diff != "" {
		t.Fatalf("unexpected frame: %s", diff)
	}

	out, err = c.EncodeFrame(ErrorFrame(nil, "boom"))
	if err != nil {
		t.Fatal(err)
	}
	frame, err = c.DecodeFrame(out)
	if err != nil {
		t.Fatal(err)
	}
	expected = map[string]interface{}{
		"marker": nil,
		"error":  "boom",
	}
	if diff := cmp.Diff(expected, frame); diff != "" {
		t.Fatalf("unexpected error frame: %s", diff)
	}

	data, err = c.EncodeCall("", 1)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.DecodeCall(data)
	if !errors.Is(err, ErrMalformedCall) {
		t.Fatalf("expected ErrMalformedCall, given: %#v", err)
	}
}
