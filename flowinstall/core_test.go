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

package flowinstall

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mixih/swarmctl/netstate"
	"github.com/mixih/swarmctl/openflow"
	"github.com/mixih/swarmctl/swaddr"
)

// recordingConn is a fake openflow.Connection that stores every message it
// is asked to Send, for assertion, and reports a fixed set of ports.
type recordingConn struct {
	dpid  int
	ports map[int]*openflow.Port
	sent  []openflow.Message
}

func newRecordingConn(dpid int, portNos ...int) *recordingConn {
	ports := make(map[int]*openflow.Port, len(portNos))
	for _, p := range portNos {
		ports[p] = &openflow.Port{PortNo: p, HWAddr: net.HardwareAddr{0, 0, 0, 0, 0, byte(p)}}
	}
	return &recordingConn{dpid: dpid, ports: ports}
}

func (c *recordingConn) DPID() int                     { return c.dpid }
func (c *recordingConn) Ports() map[int]*openflow.Port { return c.ports }
func (c *recordingConn) Send(msg openflow.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

// alwaysAllowEngine is a stub routing.Engine: every hook is a no-op and
// pre-routing always admits the packet, isolating flowinstall's own
// behavior from any particular routing strategy.
type alwaysAllowEngine struct{}

func (alwaysAllowEngine) OnConnectionUp(dpid int)             {}
func (alwaysAllowEngine) OnLinkEvent(ev openflow.LinkEvent)   {}
func (alwaysAllowEngine) OnPacketInPostrouting(openflow.PacketIn) {}
func (alwaysAllowEngine) OnPacketInPrerouting(openflow.PacketMeta, openflow.Kind) bool {
	return true
}

func TestCoreARPProxyRepliesThroughIngressPortOnly(t *testing.T) {
	st := netstate.New()
	conn := newRecordingConn(1, 1)
	core := New(st, alwaysAllowEngine{})
	core.OnConnectionUp(openflow.ConnectionUp{DPID: 1, Conn: conn})

	requesterMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0xff, 0x10}
	targetIP := net.IPv4(10, 0, 0, 3)

	arp := &openflow.ARPPacket{
		Op:       openflow.ARPRequest,
		SenderHW: requesterMAC,
		SenderIP: net.IPv4(10, 0, 0, 2),
		TargetIP: targetIP,
	}
	core.OnPacketIn(openflow.PacketIn{
		DPID: 1,
		Port: 1,
		Parsed: openflow.EthFrame{
			Src:  requesterMAC,
			Dst:  net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			Type: openflow.EtherTypeARP,
			ARP:  arp,
		},
		Conn: conn,
	})

	if len(conn.sent) != 1 {
		t.Fatalf("expected exactly one message sent (the arp reply packet_out), got %d: %#v", len(conn.sent), conn.sent)
	}
	out, ok := conn.sent[0].(openflow.PacketOut)
	if !ok {
		t.Fatalf("expected a PacketOut, got %T", conn.sent[0])
	}
	if out.InPort != 1 {
		t.Fatalf("expected the reply to go out the ingress port (1), got %d", out.InPort)
	}
	want := []openflow.Action{openflow.OutputPort(1)}
	if diff := cmp.Diff(want, out.Actions); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}

	tbl, _ := st.Table(1)
	if _, known := tbl.Get(requesterMAC); !known {
		t.Fatal("expected the requester's MAC to have been learned on port 1 before the ARP proxy ran")
	}
}

func TestCoreMACLearningSkipsBroadcastAndKnownSources(t *testing.T) {
	st := netstate.New()
	conn := newRecordingConn(1, 1, 2)
	core := New(st, alwaysAllowEngine{})
	core.OnConnectionUp(openflow.ConnectionUp{DPID: 1, Conn: conn})

	tbl, _ := st.Table(1)

	broadcast := net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	core.learn(1, 1, broadcast)
	if _, known := tbl.Get(broadcast); known {
		t.Fatal("broadcast source must never be learned")
	}

	host := swaddr.HostMACFromByte(5)
	core.learn(1, 1, host)
	if port, known := tbl.Get(host); !known || port != 1 {
		t.Fatalf("expected host learned on port 1, got (%d, %v)", port, known)
	}

	// A later sighting on a different port must not overwrite an existing
	// mapping: learn only registers genuinely new MACs.
	core.learn(1, 2, host)
	if port, _ := tbl.Get(host); port != 1 {
		t.Fatalf("expected already-known MAC to keep its original port, got %d", port)
	}
}

func TestCoreForwardFloodsUnknownDestination(t *testing.T) {
	st := netstate.New()
	conn := newRecordingConn(1, 1, 2)
	core := New(st, alwaysAllowEngine{})
	core.OnConnectionUp(openflow.ConnectionUp{DPID: 1, Conn: conn})

	dst := swaddr.HostMACFromByte(9)
	core.OnPacketIn(openflow.PacketIn{
		DPID: 1,
		Port: 1,
		Parsed: openflow.EthFrame{
			Src:  swaddr.HostMACFromByte(5),
			Dst:  dst,
			Type: openflow.EtherTypeIPv4,
			Raw:  []byte{1, 2, 3},
		},
		Conn: conn,
	})

	if len(conn.sent) != 1 {
		t.Fatalf("expected exactly one message (flood packet_out), got %d: %#v", len(conn.sent), conn.sent)
	}
	out, ok := conn.sent[0].(openflow.PacketOut)
	if !ok {
		t.Fatalf("expected a PacketOut, got %T", conn.sent[0])
	}
	want := []openflow.Action{openflow.OutputReserved(openflow.PortFlood)}
	if diff := cmp.Diff(want, out.Actions); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}
}

func TestCoreForwardInstallsFlowForKnownDestination(t *testing.T) {
	st := netstate.New()
	conn := newRecordingConn(1, 1, 2)
	core := New(st, alwaysAllowEngine{})
	core.OnConnectionUp(openflow.ConnectionUp{DPID: 1, Conn: conn})

	tbl, _ := st.Table(1)
	dst := swaddr.HostMACFromByte(9)
	tbl.Set(dst, 2)

	core.OnPacketIn(openflow.PacketIn{
		DPID: 1,
		Port: 1,
		Parsed: openflow.EthFrame{
			Src:  swaddr.HostMACFromByte(5),
			Dst:  dst,
			Type: openflow.EtherTypeIPv4,
			Raw:  []byte{1, 2, 3},
		},
		Conn: conn,
	})

	if len(conn.sent) != 2 {
		t.Fatalf("expected a flow_mod followed by a packet_out, got %d messages: %#v", len(conn.sent), conn.sent)
	}
	fm, ok := conn.sent[0].(openflow.FlowMod)
	if !ok {
		t.Fatalf("expected first message to be a FlowMod, got %T", conn.sent[0])
	}
	if fm.IdleTimeout != idleTimeout || fm.Priority != priority {
		t.Fatalf("expected idle_timeout=%d priority=%d, got %+v", idleTimeout, priority, fm)
	}
	if fm.Match.InPort != 1 || !fm.Match.InPortSet {
		t.Fatalf("expected the flow to match in_port=1, got %+v", fm.Match)
	}

	po, ok := conn.sent[1].(openflow.PacketOut)
	if !ok {
		t.Fatalf("expected second message to be a PacketOut, got %T", conn.sent[1])
	}
	want := []openflow.Action{openflow.OutputReserved(openflow.PortTable)}
	if diff := cmp.Diff(want, po.Actions); diff != "" {
		t.Fatalf("unexpected packet_out actions (-want +got):\n%s", diff)
	}
}

func TestCoreDropsIPv6Silently(t *testing.T) {
	st := netstate.New()
	conn := newRecordingConn(1, 1)
	core := New(st, alwaysAllowEngine{})
	core.OnConnectionUp(openflow.ConnectionUp{DPID: 1, Conn: conn})

	core.OnPacketIn(openflow.PacketIn{
		DPID: 1,
		Port: 1,
		Parsed: openflow.EthFrame{
			Src:  swaddr.HostMACFromByte(5),
			Dst:  swaddr.HostMACFromByte(9),
			Type: openflow.EtherTypeIPv6,
		},
		Conn: conn,
	})

	if len(conn.sent) != 0 {
		t.Fatalf("expected IPv6 to be dropped with no messages sent, got %#v", conn.sent)
	}
}

func TestCoreLinkDownClearsFlowsAndLearnedMACs(t *testing.T) {
	st := netstate.New()
	conn1 := newRecordingConn(1, 1, 2)
	conn2 := newRecordingConn(2, 1, 2)
	core := New(st, alwaysAllowEngine{})
	core.OnConnectionUp(openflow.ConnectionUp{DPID: 1, Conn: conn1})
	core.OnConnectionUp(openflow.ConnectionUp{DPID: 2, Conn: conn2})
	core.OnLinkEvent(openflow.LinkEvent{Added: true, Link: openflow.Link{DPID1: 1, Port1: 2, DPID2: 2, Port2: 2}})

	tbl1, _ := st.Table(1)
	learnedHost := swaddr.HostMACFromByte(7)
	tbl1.Set(learnedHost, 2)
	conn1.sent = nil // discard the link-up NO_FLOOD PortMod for a clean slate

	core.OnLinkEvent(openflow.LinkEvent{Removed: true, Link: openflow.Link{DPID1: 1, Port1: 2, DPID2: 2, Port2: 2}})

	if _, known := tbl1.Get(learnedHost); known {
		t.Fatal("expected MAC learned on the downed port to be purged from the forwarding table")
	}
	if !st.Dirty() {
		t.Fatal("expected link removal to mark the graph dirty")
	}

	var sawInPortDelete, sawMACDelete, sawFloodClear bool
	for _, msg := range conn1.sent {
		switch m := msg.(type) {
		case openflow.FlowMod:
			if m.Match.InPortSet && m.Match.InPort == 2 && m.Match.DLDst == nil {
				sawInPortDelete = true
			}
			if m.Match.DLDst != nil && m.Match.DLDst.String() == learnedHost.String() {
				sawMACDelete = true
			}
		case openflow.PortMod:
			if m.PortNo == 2 && !m.NoFlood {
				sawFloodClear = true
			}
		}
	}
	if !sawInPortDelete {
		t.Error("expected a flow-delete matching in_port=2")
	}
	if !sawMACDelete {
		t.Error("expected a flow-delete matching dl_dst for the MAC that was on port 2")
	}
	if !sawFloodClear {
		t.Error("expected NO_FLOOD cleared on port 2 after link removal")
	}
}
