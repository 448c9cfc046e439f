// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
	"sort"
)

// HandlerFunc implements a procedure. It terminates the call by returning
// req.Ret or req.RetError, or returns the zero Result to keep the call
// open and terminate it later with req.Finish.
type HandlerFunc func(ctx context.Context, req *Request, args Args) (Result, error)

type Procedure struct {
	Name string
	// Params is the number of declared parameters, Defaults
	// how many trailing ones may be omitted.
	Params   int
	Defaults int
	// Only public procedures are reachable by clients.
	Public bool
	Func   HandlerFunc
}

func (p *Procedure) MinArgs() int {
	return p.Params - p.Defaults
}

func (p *Procedure) MaxArgs() int {
	return p.Params
}

func (p *Procedure) CheckArity(n int) bool {
	return n >= p.MinArgs() && n <= p.MaxArgs()
}

// Registry maps procedure names to procedures. It is read-only once
// built and may be shared by any number of connections.
type Registry struct {
	procs map[string]*Procedure
}

func NewRegistry(procs ...Procedure) (*Registry, error) {
	r := &Registry{
		procs: make(map[string]*Procedure, len(procs)),
	}

	for i := range procs {
		p := procs[i]
		switch {
		case p.Name == "":
			return nil, &InvalidProcedureErr{Name: p.Name, Reason: "empty name"}
		case p.Func == nil:
			return nil, &InvalidProcedureErr{Name: p.Name, Reason: "no function"}
		case p.Params < 0 || p.Defaults < 0 || p.Defaults > p.Params:
			return nil, &InvalidProcedureErr{Name: p.Name, Reason: "defaults out of range"}
		}
		if _, ok := r.procs[p.Name]; ok {
			return nil, &InvalidProcedureErr{Name: p.Name, Reason: "duplicate name"}
		}
		r.procs[p.Name] = &p
	}

	return r, nil
}

// MustRegistry is like NewRegistry but panics on an invalid table.
func MustRegistry(procs ...Procedure) *Registry {
	r, err := NewRegistry(procs...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Resolve(name string) (*Procedure, error) {
	p, ok := r.procs[name]
	if !ok || !p.Public {
		return nil, &UndefinedMethodErr{Name: name}
	}
	return p, nil
}

// Names returns the names of public procedures in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.procs))
	for name, p := range r.procs {
		if p.Public {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Route resolves the call and checks its arity.
func (r *Registry) Route(name string, nArgs int) (*Procedure, error) {
	p, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if !p.CheckArity(nArgs) {
		return nil, &ArityMismatchErr{
			Name:  name,
			Given: nArgs,
			Min:   p.MinArgs(),
			Max:   p.MaxArgs(),
		}
	}
	return p, nil
}
