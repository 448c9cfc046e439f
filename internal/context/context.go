// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package context

import (
	"context"
	"fmt"
)

type contextKey struct {
	Name string
}

func (k *contextKey) String() string {
	return k.Name
}

var (
	ctxServerVersion = &contextKey{"server version"}
	ctxConnID        = &contextKey{"connection ID"}
	ctxRemoteAddr    = &contextKey{"remote address"}
	ctxProcedure     = &contextKey{"procedure name"}
)

func missingContextErr(ctxKey *contextKey) *MissingContextErr {
	return &MissingContextErr{ctxKey}
}

func WithServerVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, ctxServerVersion, version)
}

func ServerVersion(ctx context.Context) (string, bool) {
	version, ok := ctx.Value(ctxServerVersion).(string)
	return version, ok
}

func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxConnID, id)
}

func ConnectionID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ctxConnID).(string)
	if !ok {
		return "", missingContextErr(ctxConnID)
	}
	return id, nil
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, ctxRemoteAddr, addr)
}

func RemoteAddr(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(ctxRemoteAddr).(string)
	return addr, ok
}

func WithProcedureName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxProcedure, name)
}

func ProcedureName(ctx context.Context) (string, error) {
	name, ok := ctx.Value(ctxProcedure).(string)
	if !ok {
		return "", missingContextErr(ctxProcedure)
	}
	return name, nil
}

// Caller describes the procedure call a context belongs to,
// e.g. for attributing work started on its behalf.
func Caller(ctx context.Context) (string, error) {
	id, err := ConnectionID(ctx)
	if err != nil {
		return "", err
	}
	name, err := ProcedureName(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (connection %s)", name, id), nil
}
