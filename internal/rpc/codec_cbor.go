// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBORCodec carries the same messages as JSONCodec in binary form.
type CBORCodec struct {
	dec cbor.DecMode
	enc cbor.EncMode
}

type cborCall struct {
	FunctionName   *string         `cbor:"function_name"`
	ParametersList []interface{}   `cbor:"parameters_list"`
	Marker         cbor.RawMessage `cbor:"marker"`
}

type cborResultFrame struct {
	Marker cbor.RawMessage `cbor:"marker"`
	Result interface{}     `cbor:"result"`
	EOD    int             `cbor:"eod"`
}

type cborErrorFrame struct {
	Marker cbor.RawMessage `cbor:"marker"`
	Error  string          `cbor:"error"`
}

func NewCBORCodec() (*CBORCodec, error) {
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	enc, err := cbor.EncOptions{}.EncMode()
	if err != nil {
		return nil, err
	}
	return &CBORCodec{dec: dec, enc: enc}, nil
}

func (*CBORCodec) Name() string {
	return "shirow.cbor"
}

func (*CBORCodec) Binary() bool {
	return true
}

func (c *CBORCodec) DecodeCall(data []byte) (*Call, error) {
	var in cborCall
	err := c.dec.Unmarshal(data, &in)
	if err != nil {
		return nil, err
	}

	call := &Call{
		Arguments: Args(in.ParametersList),
		Marker:    Marker(in.Marker),
	}
	if call.Arguments == nil {
		call.Arguments = Args{}
	}
	if in.FunctionName == nil || *in.FunctionName == "" {
		return call, ErrMalformedCall
	}
	call.FunctionName = *in.FunctionName

	return call, nil
}

func (c *CBORCodec) EncodeFrame(f *Frame) ([]byte, error) {
	marker := cbor.RawMessage(f.Marker)
	if f.IsError {
		return c.enc.Marshal(cborErrorFrame{
			Marker: marker,
			Error:  f.Err,
		})
	}
	return c.enc.Marshal(cborResultFrame{
		Marker: marker,
		Result: f.Result,
		EOD:    f.eod(),
	})
}

// DecodeFrame is the client side counterpart of EncodeFrame.
func (c *CBORCodec) DecodeFrame(data []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.dec.Unmarshal(data, &out)
	return out, err
}

// EncodeCall is the client side counterpart of DecodeCall.
func (c *CBORCodec) EncodeCall(name string, marker interface{}, params ...interface{}) ([]byte, error) {
	if params == nil {
		params = []interface{}{}
	}
	return c.enc.Marshal(map[string]interface{}{
		"function_name":   name,
		"parameters_list": params,
		"marker":          marker,
	})
}
