// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
	"log"
)

// Service is created once per admitted connection. Its procedures
// table is usually shared between all instances.
type Service interface {
	Procedures() *Registry
	// Create runs once, before the first call is read.
	Create(conn *Conn)
	// Destroy runs once, after the transport closed.
	Destroy(conn *Conn)
}

type ServiceFactory func(context.Context) Service

// NopHooks can be embedded by services with no per-connection setup.
type NopHooks struct{}

func (NopHooks) Create(*Conn)  {}
func (NopHooks) Destroy(*Conn) {}

type loggable interface {
	SetLogger(*log.Logger)
}
