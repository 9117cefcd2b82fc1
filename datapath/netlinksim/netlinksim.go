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

// Package netlinksim mirrors the flow rules flowinstall installs onto a
// generic-netlink family, the way ovsnl.Client encodes real OVS datapath
// operations onto the kernel's ovs_datapath/ovs_vport/ovs_flow families.
// It is not on the control plane's hot path: the harness's simulated
// switches never touch a kernel datapath. Dialing a Simulator is an
// optional demonstration the harness's run subcommand can opt into with
// -real-datapath to show the same flow vocabulary traveling over a real
// netlink socket.
package netlinksim

import (
	"net"
	"os"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"

	"github.com/mixih/swarmctl/openflow"
)

// FamilyName is the generic-netlink family this package speaks. No
// kernel module ever registers it; a Simulator only ever talks to a
// genltest fake or a userspace peer that also links this package.
const FamilyName = "swarmctl_sim"

// Attribute types carried in a flow_mod/flow_del request, scoped the way
// ovsh's DpAttr/FlowAttr constants scope OVS's own generic-netlink
// attributes.
const (
	attrUnspec = iota
	attrDPID
	attrCommand
	attrInPort
	attrDLSrc
	attrDLDst
	attrDLType
	attrOutPort
	attrIdleTimeout
	attrPriority
)

// Command values for a flow_mod request.
const (
	cmdFlowAdd = iota + 1
	cmdFlowDel
)

// Simulator is a generic-netlink client bound to the swarmctl_sim family.
type Simulator struct {
	c *genetlink.Conn
	f genetlink.Family
}

// Dial opens a real generic-netlink socket and resolves the swarmctl_sim
// family. If the family is not registered (the common case — this isn't
// a real kernel module), the returned error satisfies os.IsNotExist, the
// same contract ovsnl.New uses when no ovs_* families are present.
func Dial() (*Simulator, error) {
	conn, err := genetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	return newSimulator(conn)
}

// newSimulator is the internal constructor, also used by tests against a
// genltest fake connection.
func newSimulator(c *genetlink.Conn) (*Simulator, error) {
	families, err := c.ListFamilies()
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	for _, f := range families {
		if f.Name == FamilyName {
			return &Simulator{c: c, f: f}, nil
		}
	}

	_ = c.Close()
	return nil, os.ErrNotExist
}

// Close closes the Simulator's generic-netlink connection.
func (s *Simulator) Close() error {
	return s.c.Close()
}

// InstallFlow encodes an openflow.FlowMod as a flow_mod request and sends
// it over netlink, mirroring flowinstall's reactive flow install onto a
// real transport. Only the first concrete Output action is carried: the
// simulated family models single-port forwarding, not full OpenFlow
// action lists.
func (s *Simulator) InstallFlow(dpid int, fm openflow.FlowMod) error {
	cmd := uint8(cmdFlowAdd)
	if fm.Command == openflow.FlowDelete {
		cmd = cmdFlowDel
	}

	attrs := []netlink.Attribute{
		{Type: attrDPID, Data: nlenc.Uint32Bytes(uint32(dpid))},
		{Type: attrCommand, Data: nlenc.Uint8Bytes(cmd)},
	}
	if fm.Match.InPortSet {
		attrs = append(attrs, netlink.Attribute{Type: attrInPort, Data: nlenc.Uint32Bytes(uint32(fm.Match.InPort))})
	}
	if fm.Match.DLSrc != nil {
		attrs = append(attrs, netlink.Attribute{Type: attrDLSrc, Data: []byte(fm.Match.DLSrc)})
	}
	if fm.Match.DLDst != nil {
		attrs = append(attrs, netlink.Attribute{Type: attrDLDst, Data: []byte(fm.Match.DLDst)})
	}
	if fm.Match.DLType != 0 {
		attrs = append(attrs, netlink.Attribute{Type: attrDLType, Data: nlenc.Uint16Bytes(uint16(fm.Match.DLType))})
	}
	if port, ok := outputPort(fm.Actions); ok {
		attrs = append(attrs, netlink.Attribute{Type: attrOutPort, Data: nlenc.Uint32Bytes(uint32(port))})
	}
	attrs = append(attrs,
		netlink.Attribute{Type: attrIdleTimeout, Data: nlenc.Uint32Bytes(uint32(fm.IdleTimeout))},
		netlink.Attribute{Type: attrPriority, Data: nlenc.Uint32Bytes(uint32(fm.Priority))},
	)

	data, err := netlink.MarshalAttributes(attrs)
	if err != nil {
		return err
	}

	req := genetlink.Message{
		Header: genetlink.Header{Command: cmd, Version: uint8(s.f.Version)},
		Data:   data,
	}
	_, err = s.c.Execute(req, s.f.ID, netlink.Request|netlink.Acknowledge)
	return err
}

// outputPort extracts the concrete destination port from the first
// Output action carrying one, skipping reserved-port actions (flood,
// table) the simulated family has no representation for.
func outputPort(actions []openflow.Action) (int, bool) {
	for _, a := range actions {
		out, ok := a.(openflow.Output)
		if !ok || out.Reserved != 0 {
			continue
		}
		return out.Port, true
	}
	return 0, false
}

// ParsedFlow is a flow_mod request decoded back into its fields, used by
// tests and by a genltest handler asserting on what a Simulator sent.
type ParsedFlow struct {
	DPID        int
	Command     openflow.FlowCommand
	InPort      int
	InPortSet   bool
	DLSrc       net.HardwareAddr
	DLDst       net.HardwareAddr
	DLType      openflow.EtherType
	OutPort     int
	OutPortSet  bool
	IdleTimeout int
	Priority    int
}

// ParseFlow parses the attribute set InstallFlow encodes.
func ParseFlow(data []byte) (ParsedFlow, error) {
	attrs, err := netlink.UnmarshalAttributes(data)
	if err != nil {
		return ParsedFlow{}, err
	}

	var pf ParsedFlow
	for _, a := range attrs {
		switch a.Type {
		case attrDPID:
			pf.DPID = int(nlenc.Uint32(a.Data))
		case attrCommand:
			if nlenc.Uint8(a.Data) == cmdFlowDel {
				pf.Command = openflow.FlowDelete
			}
		case attrInPort:
			pf.InPort = int(nlenc.Uint32(a.Data))
			pf.InPortSet = true
		case attrDLSrc:
			pf.DLSrc = net.HardwareAddr(append([]byte(nil), a.Data...))
		case attrDLDst:
			pf.DLDst = net.HardwareAddr(append([]byte(nil), a.Data...))
		case attrDLType:
			pf.DLType = openflow.EtherType(nlenc.Uint16(a.Data))
		case attrOutPort:
			pf.OutPort = int(nlenc.Uint32(a.Data))
			pf.OutPortSet = true
		case attrIdleTimeout:
			pf.IdleTimeout = int(nlenc.Uint32(a.Data))
		case attrPriority:
			pf.Priority = int(nlenc.Uint32(a.Data))
		}
	}

	return pf, nil
}
