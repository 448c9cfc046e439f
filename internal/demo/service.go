// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package demo is a service showing what procedures can do:
// plain results, streamed results, errors and subprocesses.
package demo

import (
	"context"
	"log"

	"github.com/tolstoyevsky/shirow/internal/logging"
	"github.com/tolstoyevsky/shirow/internal/process"
	"github.com/tolstoyevsky/shirow/internal/rpc"
)

type Service struct {
	logger   *log.Logger
	executor *process.Executor
}

func NewServiceFactory(executor *process.Executor) rpc.ServiceFactory {
	return func(ctx context.Context) rpc.Service {
		return &Service{
			logger:   logging.NopLogger(),
			executor: executor,
		}
	}
}

func (s *Service) SetLogger(logger *log.Logger) {
	s.logger = logger
}

func (s *Service) Procedures() *rpc.Registry {
	return procedures
}

func (s *Service) Create(conn *rpc.Conn) {
	s.logger.Printf("demo: %s connected", conn.Identity())
}

func (s *Service) Destroy(conn *rpc.Conn) {
	s.logger.Printf("demo: %s disconnected", conn.Identity())
}

func serviceOf(req *rpc.Request) *Service {
	return req.Conn().Service().(*Service)
}

// ProcedureNames lists the procedures clients may call.
func ProcedureNames() []string {
	return procedures.Names()
}
