// Copyright 2026 The swarmctl Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package controller is the outermost shell binding an OpenFlow event
// source to the flow-installer core and a chosen routing engine. It owns
// no algorithmic behavior itself; it exists so the binary entrypoint has
// a single explicit value to construct and drive, rather than reaching
// for package-level state.
package controller

import (
	"io"
	"log"

	"github.com/mixih/swarmctl/flowinstall"
	"github.com/mixih/swarmctl/netstate"
	"github.com/mixih/swarmctl/openflow"
	"github.com/mixih/swarmctl/routing"
)

// Controller binds one *netstate.State, one routing.Engine, and the
// flowinstall.Core that mediates between them to a stream of external
// OpenFlow events. There is no global singleton: a process that wants two
// independent control planes constructs two Controllers.
type Controller struct {
	state *netstate.State
	core  *flowinstall.Core
	log   *log.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger overrides the controller's logger, which it also hands to
// the flow-installer core it constructs.
func WithLogger(ll *log.Logger) Option {
	return func(c *Controller) { c.log = ll }
}

// New returns a Controller over state, driven by engine. engine must
// already be constructed against the same state (e.g.
// routing.NewDijkstra(state)) — exactly one engine is active per
// Controller, and the caller, not this package, owns wiring the two
// together so the dependency is explicit at the call site.
func New(state *netstate.State, engine routing.Engine, opts ...Option) *Controller {
	c := &Controller{
		state: state,
		log:   log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(c)
	}
	c.core = flowinstall.New(c.state, engine, flowinstall.WithLogger(c.log))
	return c
}

// State returns the controller's shared state, primarily for tests and
// harnesses that need to inspect forwarding tables or the topology graph
// directly.
func (c *Controller) State() *netstate.State { return c.state }

// HandleConnectionUp dispatches a switch's control-channel establishment
// to the flow-installer core.
func (c *Controller) HandleConnectionUp(ev openflow.ConnectionUp) {
	c.log.Printf("controller: switch %d connected", ev.DPID)
	c.core.OnConnectionUp(ev)
}

// HandleLinkEvent dispatches a link-discovery event to the flow-installer
// core.
func (c *Controller) HandleLinkEvent(ev openflow.LinkEvent) {
	switch {
	case ev.Added:
		c.log.Printf("controller: link up %d:%d <-> %d:%d", ev.Link.DPID1, ev.Link.Port1, ev.Link.DPID2, ev.Link.Port2)
	case ev.Removed:
		c.log.Printf("controller: link down %d:%d <-> %d:%d", ev.Link.DPID1, ev.Link.Port1, ev.Link.DPID2, ev.Link.Port2)
	}
	c.core.OnLinkEvent(ev)
}

// HandlePacketIn dispatches a packet-in to the flow-installer core.
func (c *Controller) HandlePacketIn(ev openflow.PacketIn) {
	c.core.OnPacketIn(ev)
}
