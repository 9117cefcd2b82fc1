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

// Package netstate holds the state shared between the flow-installer core
// and whichever routing engine is active: the topology graph, the
// per-switch forwarding tables, the dirty flag, and the live connections
// needed to broadcast flow-table deletes. It has no behavior of its own
// beyond bookkeeping — the interesting logic lives in flowinstall and
// routing, which both take a *State as a dependency.
package netstate

import (
	"github.com/mixih/swarmctl/forwarding"
	"github.com/mixih/swarmctl/openflow"
	"github.com/mixih/swarmctl/topology"
)

// State is the mutable state a single controller instance owns. It is not
// safe for concurrent use; the control plane is a single-threaded
// event loop.
type State struct {
	Graph   *topology.Graph
	tables  map[int]*forwarding.Table
	conns   map[int]openflow.Connection
	dirty   bool
}

// New returns an empty State.
func New() *State {
	return &State{
		Graph:  topology.New(),
		tables: make(map[int]*forwarding.Table),
		conns:  make(map[int]openflow.Connection),
	}
}

// OnConnectionUp registers dpid with the topology graph and creates an
// empty forwarding table and connection record for it.
func (s *State) OnConnectionUp(dpid int, conn openflow.Connection) {
	s.Graph.RegisterNode(dpid)
	s.tables[dpid] = forwarding.New()
	s.conns[dpid] = conn
}

// Table returns dpid's forwarding table, and whether it exists.
func (s *State) Table(dpid int) (*forwarding.Table, bool) {
	t, ok := s.tables[dpid]
	return t, ok
}

// Connection returns dpid's live connection, and whether it exists.
func (s *State) Connection(dpid int) (openflow.Connection, bool) {
	c, ok := s.conns[dpid]
	return c, ok
}

// Dirty reports whether the topology has changed since the last routing
// recomputation.
func (s *State) Dirty() bool { return s.dirty }

// MarkDirty sets the dirty flag; called on every LinkEvent.
func (s *State) MarkDirty() { s.dirty = true }

// ClearDirty clears the dirty flag; called at the start of route
// recomputation.
func (s *State) ClearDirty() { s.dirty = false }

// BroadcastFlowDelete sends a wildcard flow-table delete to every connected
// switch, so stale flows expire immediately after a full recomputation.
func (s *State) BroadcastFlowDelete() {
	msg := openflow.FlowMod{Command: openflow.FlowDelete}
	for _, conn := range s.conns {
		_ = conn.Send(msg)
	}
}
