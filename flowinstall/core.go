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

// Package flowinstall is the packet-in handler: it turns a raw PacketIn
// into MAC learning, an ARP proxy reply, or an installed flow rule, and
// reacts to link up/down events by toggling flood behavior and purging
// stale flows. It owns no routing logic of its own — the active
// routing.Engine decides reachability; flowinstall only acts on it.
package flowinstall

import (
	"io"
	"log"
	"net"

	"github.com/mixih/swarmctl/netstate"
	"github.com/mixih/swarmctl/openflow"
	"github.com/mixih/swarmctl/routing"
	"github.com/mixih/swarmctl/swaddr"
	"github.com/mixih/swarmctl/topology"
)

// idleTimeout and priority are the fixed parameters of every reactive flow
// rule flowinstall installs. The system performs no flow
// aggregation or QoS, so these never vary.
const (
	idleTimeout = 120
	priority    = 1
)

// Core is the packet-in/flow-installer core. It is not safe for concurrent
// use; it is driven by a single-threaded event loop.
type Core struct {
	state  *netstate.State
	engine routing.Engine
	log    *log.Logger
}

// Option configures a Core.
type Option func(*Core)

// WithLogger overrides the core's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Core) { c.log = l }
}

// New returns a Core bound to state and driven by engine.
func New(state *netstate.State, engine routing.Engine, opts ...Option) *Core {
	c := &Core{
		state:  state,
		engine: engine,
		log:    log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnConnectionUp registers a newly connected switch with both the shared
// state and the active routing engine.
func (c *Core) OnConnectionUp(ev openflow.ConnectionUp) {
	c.state.OnConnectionUp(ev.DPID, ev.Conn)
	c.engine.OnConnectionUp(ev.DPID)
}

// OnLinkEvent absorbs a link-discovery event into the topology graph,
// toggles NO_FLOOD on the affected ports, purges stale flow state on
// removal, and marks the graph dirty so the next packet-in recomputes
// routes.
func (c *Core) OnLinkEvent(ev openflow.LinkEvent) {
	c.state.Graph.ApplyLinkEvent(topology.LinkEvent{
		Added:   ev.Added,
		Removed: ev.Removed,
		DPID1:   ev.Link.DPID1,
		Port1:   ev.Link.Port1,
		DPID2:   ev.Link.DPID2,
		Port2:   ev.Link.Port2,
	})

	switch {
	case ev.Added:
		c.setPortFlood(ev.Link.DPID1, ev.Link.Port1, false)
		c.setPortFlood(ev.Link.DPID2, ev.Link.Port2, false)
	case ev.Removed:
		c.setPortFlood(ev.Link.DPID1, ev.Link.Port1, true)
		c.setPortFlood(ev.Link.DPID2, ev.Link.Port2, true)
		c.clearRulesForPort(ev.Link.DPID1, ev.Link.Port1)
		c.clearRulesForPort(ev.Link.DPID2, ev.Link.Port2)
	}

	c.state.MarkDirty()
	c.engine.OnLinkEvent(ev)
}

// setPortFlood sets or clears a port's NO_FLOOD bit via a PortMod.
// allowFlood=false sets NO_FLOOD (link-up); allowFlood=true
// clears it (link-down). A switch or port the core has no record of is
// silently skipped — it has already gone away.
func (c *Core) setPortFlood(dpid, portNo int, allowFlood bool) {
	conn, ok := c.state.Connection(dpid)
	if !ok {
		return
	}
	port, ok := conn.Ports()[portNo]
	if !ok {
		return
	}
	_ = conn.Send(openflow.PortMod{
		PortNo:  portNo,
		HWAddr:  port.HWAddr,
		NoFlood: !allowFlood,
	})
}

// clearRulesForPort deletes every flow rule anchored to a port that just
// went down: one flow-delete matching in_port, and one per MAC that was
// known to reside on that port, consulted from the reverse index before
// the local forwarding-table entries are purged.
func (c *Core) clearRulesForPort(dpid, portNo int) {
	conn, connOK := c.state.Connection(dpid)
	table, tableOK := c.state.Table(dpid)
	if !tableOK {
		return
	}

	macs := table.MACsOnPort(portNo)
	if connOK {
		_ = conn.Send(openflow.FlowMod{Command: openflow.FlowDelete, Match: openflow.InPortMatch(portNo)})
	}
	for _, mac := range macs {
		if connOK {
			_ = conn.Send(openflow.FlowMod{Command: openflow.FlowDelete, Match: openflow.DataLinkDestination(mac)})
		}
		table.Remove(mac)
	}
}

// OnPacketIn is the packet-in handler. It drops IPv6 silently, logs and
// drops unrecognized ethertypes, defers to the routing engine's
// pre-routing hook, learns the source MAC if it is new, and dispatches to
// the ARP proxy or the forward path.
func (c *Core) OnPacketIn(ev openflow.PacketIn) {
	frame := ev.Parsed
	if frame.Type == openflow.EtherTypeIPv6 {
		return
	}

	kind := classify(frame.Type)
	if kind == openflow.KindUnknown {
		err := &UnhandledFrameError{DPID: ev.DPID, EtherType: frame.Type}
		c.log.Printf("flowinstall: %v", err)
		return
	}

	meta := openflow.PacketMeta{DPID: ev.DPID, InPort: ev.Port, Frame: frame}
	if !c.engine.OnPacketInPrerouting(meta, kind) {
		return
	}

	c.learn(ev.DPID, ev.Port, frame.Src)

	if kind == openflow.KindARP && frame.ARP != nil && frame.ARP.Op == openflow.ARPRequest {
		c.proxyARP(ev)
	} else {
		c.forward(ev)
	}

	c.engine.OnPacketInPostrouting(ev)
}

func classify(t openflow.EtherType) openflow.Kind {
	switch t {
	case openflow.EtherTypeARP:
		return openflow.KindARP
	case openflow.EtherTypeIPv4:
		return openflow.KindIPv4
	default:
		return openflow.KindUnknown
	}
}

// learn records a directly attached host's MAC on the port it arrived on,
// skipping the broadcast address and skipping MACs already known — only
// direct attachment is learned; switch-to-switch reachability comes
// from the routing engine, not MAC learning.
func (c *Core) learn(dpid, inPort int, src net.HardwareAddr) {
	if swaddr.IsBroadcast(src) {
		return
	}
	table, ok := c.state.Table(dpid)
	if !ok {
		return
	}
	if _, known := table.Get(src); known {
		return
	}
	table.Set(src, inPort)
}

// proxyARP answers an ARP request on behalf of its target without ever
// flooding it onto the network or installing a flow rule.
// The replying MAC is synthesized from the requested IP, per the
// controller's OUI scheme — the controller itself stands in for every
// host and switch it has never actually seen answer.
func (c *Core) proxyARP(ev openflow.PacketIn) {
	req := ev.Parsed.ARP
	replyMAC, err := swaddr.HostMAC(req.TargetIP)
	if err != nil {
		c.log.Printf("flowinstall: arp proxy: %v", err)
		return
	}

	reply := req.Reply(replyMAC)
	replyFrame := openflow.EthFrame{
		Src:   replyMAC,
		Dst:   reply.TargetHW,
		Type:  openflow.EtherTypeARP,
		ARP:   &reply,
		SrcIP: reply.SenderIP,
		DstIP: reply.TargetIP,
	}

	conn, ok := c.state.Connection(ev.DPID)
	if !ok {
		return
	}
	_ = conn.Send(openflow.PacketOut{
		InPort:  ev.Port,
		Data:    encodeARPReply(replyFrame),
		Actions: []openflow.Action{openflow.OutputPort(ev.Port)},
	})
}

// encodeARPReply is a placeholder for the wire encoding of an ARP reply
// frame; the external collaborator owns the actual byte layout,
// so the core only needs a non-nil payload to hand to packet_out.
func encodeARPReply(f openflow.EthFrame) []byte {
	if f.Raw != nil {
		return f.Raw
	}
	return []byte{}
}

// forward implements the non-ARP packet path: if the
// destination MAC is known, a flow rule is installed and the triggering
// packet is resubmitted through the tables; otherwise it is flooded.
func (c *Core) forward(ev openflow.PacketIn) {
	frame := ev.Parsed
	conn, ok := c.state.Connection(ev.DPID)
	if !ok {
		return
	}
	table, ok := c.state.Table(ev.DPID)
	if !ok {
		return
	}

	dport, known := table.Get(frame.Dst)
	if !known {
		_ = conn.Send(openflow.PacketOut{
			InPort:  ev.Port,
			Data:    frame.Raw,
			Actions: []openflow.Action{openflow.OutputReserved(openflow.PortFlood)},
		})
		return
	}

	_ = conn.Send(openflow.FlowMod{
		Command: openflow.FlowAdd,
		Match: openflow.Match{
			InPortSet: true,
			InPort:    ev.Port,
			DLSrc:     frame.Src,
			DLDst:     frame.Dst,
			DLType:    frame.Type,
		},
		Actions:     []openflow.Action{openflow.OutputPort(dport)},
		IdleTimeout: idleTimeout,
		Priority:    priority,
	})

	_ = conn.Send(openflow.PacketOut{
		InPort:  ev.Port,
		Data:    frame.Raw,
		Actions: []openflow.Action{openflow.OutputReserved(openflow.PortTable)},
	})
}
