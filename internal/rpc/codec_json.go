// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"encoding/json"
)

type JSONCodec struct{}

type jsonCall struct {
	FunctionName   *string         `json:"function_name"`
	ParametersList []interface{}   `json:"parameters_list"`
	Marker         json.RawMessage `json:"marker"`
}

type jsonResultFrame struct {
	Marker json.RawMessage `json:"marker"`
	Result interface{}     `json:"result"`
	EOD    int             `json:"eod"`
}

type jsonErrorFrame struct {
	Marker json.RawMessage `json:"marker"`
	Error  string          `json:"error"`
}

func (JSONCodec) Name() string {
	return "shirow.json"
}

func (JSONCodec) Binary() bool {
	return false
}

func (JSONCodec) DecodeCall(data []byte) (*Call, error) {
	var in jsonCall
	err := json.Unmarshal(data, &in)
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

func (JSONCodec) EncodeFrame(f *Frame) ([]byte, error) {
	marker := json.RawMessage(f.Marker)
	if f.IsError {
		return json.Marshal(jsonErrorFrame{
			Marker: marker,
			Error:  f.Err,
		})
	}
	return json.Marshal(jsonResultFrame{
		Marker: marker,
		Result: f.Result,
		EOD:    f.eod(),
	})
}
