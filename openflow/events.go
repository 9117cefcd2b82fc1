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

// Package openflow describes the external OpenFlow collaborator the
// control plane depends on: the events it delivers (ConnectionUp,
// LinkEvent, PacketIn) and the messages it accepts (FlowMod, PacketOut,
// PortMod). The wire dialect and connection lifecycle themselves are out of
// scope — this package only specifies the shapes the core control-plane
// packages (flowinstall, routing, controller) compile against.
package openflow

import "net"

// EtherType identifies the payload carried by an Ethernet frame.
type EtherType uint16

// EtherType values the controller distinguishes. Anything else is logged
// and discarded.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86DD
)

// ARPOp is an ARP opcode.
type ARPOp uint16

// ARPOp values.
const (
	ARPRequest ARPOp = 1
	ARPReply   ARPOp = 2
)

// ARPPacket is the parsed payload of an ARP frame.
type ARPPacket struct {
	Op ARPOp

	SenderHW net.HardwareAddr
	SenderIP net.IP
	TargetHW net.HardwareAddr
	TargetIP net.IP
}

// Reply returns the ARP reply to r, with sender/target swapped and
// SenderHW set to senderHW.
func (r ARPPacket) Reply(senderHW net.HardwareAddr) ARPPacket {
	return ARPPacket{
		Op:       ARPReply,
		SenderHW: senderHW,
		SenderIP: r.TargetIP,
		TargetHW: r.SenderHW,
		TargetIP: r.SenderIP,
	}
}

// EthFrame is a parsed Ethernet frame as delivered by a PacketIn.
type EthFrame struct {
	Src  net.HardwareAddr
	Dst  net.HardwareAddr
	Type EtherType

	ARP *ARPPacket // non-nil iff Type == EtherTypeARP

	// SrcIP/DstIP are populated for both ARP (protocol addresses) and IPv4
	// (header addresses) frames; nil otherwise.
	SrcIP net.IP
	DstIP net.IP

	// Raw is the original wire bytes, reused verbatim by packet_out actions
	// so the triggering packet is never silently dropped.
	Raw []byte
}

// Port is a switch's view of one of its own physical ports.
type Port struct {
	PortNo  int
	HWAddr  net.HardwareAddr
	NoFlood bool
}

// Connection is a single switch's control channel. It is the conduit
// flowinstall uses to install flow rules and emit packets; the wire
// encoding of Send is owned by the external collaborator.
type Connection interface {
	DPID() int
	Ports() map[int]*Port
	Send(msg Message) error
}

// ConnectionUp is delivered when a switch establishes its control channel.
type ConnectionUp struct {
	DPID int
	Conn Connection
}

// Link describes one physical, bidirectional connection between two
// switches.
type Link struct {
	DPID1 int
	Port1 int
	DPID2 int
	Port2 int
}

// LinkEvent is delivered by link discovery when a physical link appears or
// disappears.
type LinkEvent struct {
	Added   bool
	Removed bool
	Link    Link
}

// PacketIn is delivered whenever a switch sends an unmatched packet to the
// controller.
type PacketIn struct {
	DPID   int
	Port   int
	Parsed EthFrame
	Conn   Connection
}
