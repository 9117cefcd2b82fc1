// Copyright 2017 DigitalOcean.
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

// Package swaddr synthesizes the MAC addresses the controller relies on to
// answer ARP requests without flooding: every switch and every host in the
// ad-hoc network shares the OUI 02:00:00:00:ff:00/40, disambiguated by the
// low byte of the switch's dpid or the host's IP.
package swaddr

import (
	"fmt"
	"net"
)

// oui is the organizationally unique identifier shared by every synthetic
// MAC this package produces.
var oui = [5]byte{0x02, 0x00, 0x00, 0x00, 0xff}

// DPIDMAC returns the synthetic MAC address for the switch identified by
// dpid. Only the low byte of dpid is encoded; callers must keep dpids below
// 256 for the mapping to stay unambiguous with host MACs (see HostMAC).
func DPIDMAC(dpid int) net.HardwareAddr {
	return mac(byte(dpid))
}

// HostMAC returns the synthetic MAC address for the host whose IP is
// 10.0.0.<n>, where n is ip's low byte. It returns an error if ip does not
// parse as an IPv4 address.
func HostMAC(ip net.IP) (net.HardwareAddr, error) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("swaddr: %s is not an IPv4 address", ip)
	}
	return mac(v4[3]), nil
}

// HostMACFromByte returns the synthetic MAC address for the host whose IP
// is 10.0.0.<n>. It is the integer-keyed counterpart to HostMAC, for
// callers that have a host number rather than a net.IP.
func HostMACFromByte(n byte) net.HardwareAddr {
	return mac(n)
}

func mac(low byte) net.HardwareAddr {
	hw := make(net.HardwareAddr, 6)
	copy(hw, oui[:])
	hw[5] = low
	return hw
}

// broadcast is the Ethernet broadcast address, against which MAC learning
// must never register a forwarding entry.
var broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IsBroadcast reports whether mac is the Ethernet broadcast address.
func IsBroadcast(mac net.HardwareAddr) bool {
	return bytesEqual(mac, broadcast)
}

func bytesEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
