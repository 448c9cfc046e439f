// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"errors"

	"github.com/mitchellh/mapstructure"
)

var errMissingArg = errors.New("missing")

// Args is the positional argument list of a call, as decoded
// from the wire and not yet typed.
type Args []interface{}

func (a Args) Len() int {
	return len(a)
}

func (a Args) Has(i int) bool {
	return i >= 0 && i < len(a)
}

// Decode converts argument i into out, which must be a pointer.
func (a Args) Decode(i int, out interface{}) error {
	if !a.Has(i) {
		return &ArgumentErr{Index: i, Err: errMissingArg}
	}
	if err := decode(a[i], out); err != nil {
		return &ArgumentErr{Index: i, Err: err}
	}
	return nil
}

// DecodeAll converts the whole list into out, usually a pointer to a slice.
func (a Args) DecodeAll(out interface{}) error {
	return decode([]interface{}(a), out)
}

func (a Args) Int(i int) (int64, error) {
	var v int64
	err := a.Decode(i, &v)
	return v, err
}

func (a Args) Float(i int) (float64, error) {
	var v float64
	err := a.Decode(i, &v)
	return v, err
}

func (a Args) String(i int) (string, error) {
	var v string
	err := a.Decode(i, &v)
	return v, err
}

func (a Args) Bool(i int) (bool, error) {
	var v bool
	err := a.Decode(i, &v)
	return v, err
}

// StringOr returns def when argument i was omitted.
func (a Args) StringOr(i int, def string) (string, error) {
	if !a.Has(i) {
		return def, nil
	}
	return a.String(i)
}

// IntOr returns def when argument i was omitted.
func (a Args) IntOr(i int, def int64) (int64, error) {
	if !a.Has(i) {
		return def, nil
	}
	return a.Int(i)
}

func (a Args) Strings() ([]string, error) {
	var v []string
	err := a.DecodeAll(&v)
	return v, err
}

func decode(in, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
