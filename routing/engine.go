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

// Package routing implements the pluggable routing engines — Dijkstra,
// distance-vector, and ant-colony optimization — that turn a topology
// graph into per-switch MAC-to-port forwarding tables.
//
// Exactly one engine is active at a time: the controller shell dispatches
// events to it through the shared Engine interface rather than through a
// sealed type switch, so that adding a fourth engine never touches
// flowinstall or controller.
package routing

import "github.com/mixih/swarmctl/openflow"

// Engine is the capability set every routing strategy implements so the
// controller shell can dispatch to any of them uniformly. hooks are named
// after the lifecycle points flowinstall.Core calls them from.
type Engine interface {
	// OnConnectionUp is called after a new switch's forwarding table and
	// graph node have been created.
	OnConnectionUp(dpid int)

	// OnLinkEvent is called after the topology graph has already absorbed
	// ev and the dirty flag has already been set.
	OnLinkEvent(ev openflow.LinkEvent)

	// OnPacketInPrerouting is called before MAC learning and ARP/forward
	// dispatch. If it returns false, flowinstall.Core aborts processing of
	// this PacketIn entirely.
	OnPacketInPrerouting(meta openflow.PacketMeta, kind openflow.Kind) bool

	// OnPacketInPostrouting is called after the forward/ARP path has run.
	OnPacketInPostrouting(ev openflow.PacketIn)
}
