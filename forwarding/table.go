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

// Package forwarding implements the per-switch MAC-to-port forwarding
// table, along with the reverse port-to-MACs index used to purge entries
// when a port goes down.
package forwarding

import "net"

// key is a comparable stand-in for net.HardwareAddr, which is a slice and
// therefore cannot be used directly as a map key.
type key [6]byte

func toKey(mac net.HardwareAddr) key {
	var k key
	copy(k[:], mac)
	return k
}

func (k key) mac() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	copy(mac, k[:])
	return mac
}

// Table is a single switch's forwarding table: a MAC-to-port map plus a
// port-to-MACs reverse index kept in sync with it.
//
// Table is not safe for concurrent use; the controller that owns it runs a
// single-threaded event loop, so no synchronization is required.
type Table struct {
	fwd     map[key]int
	reverse map[int]map[key]struct{}
}

// New returns an empty Table.
func New() *Table {
	return &Table{
		fwd:     make(map[key]int),
		reverse: make(map[int]map[key]struct{}),
	}
}

// Set maps mac to port, replacing any prior mapping for mac and removing it
// from the reverse index of its old port first.
func (t *Table) Set(mac net.HardwareAddr, port int) {
	k := toKey(mac)
	if old, ok := t.fwd[k]; ok {
		t.removeFromReverse(old, k)
	}

	t.fwd[k] = port
	if t.reverse[port] == nil {
		t.reverse[port] = make(map[key]struct{})
	}
	t.reverse[port][k] = struct{}{}
}

// Get returns the port mac is mapped to, and whether an entry exists at
// all. A zero-value return with ok=false distinguishes "unknown" from a
// genuine mapping to port 0.
func (t *Table) Get(mac net.HardwareAddr) (port int, ok bool) {
	port, ok = t.fwd[toKey(mac)]
	return port, ok
}

// Remove deletes mac's entry, if any. Removing an unknown MAC is a no-op.
func (t *Table) Remove(mac net.HardwareAddr) {
	k := toKey(mac)
	port, ok := t.fwd[k]
	if !ok {
		return
	}
	delete(t.fwd, k)
	t.removeFromReverse(port, k)
}

func (t *Table) removeFromReverse(port int, k key) {
	set := t.reverse[port]
	if set == nil {
		return
	}
	delete(set, k)
	if len(set) == 0 {
		delete(t.reverse, port)
	}
}

// MACsOnPort returns every MAC currently mapped to port.
func (t *Table) MACsOnPort(port int) []net.HardwareAddr {
	set := t.reverse[port]
	macs := make([]net.HardwareAddr, 0, len(set))
	for k := range set {
		macs = append(macs, k.mac())
	}
	return macs
}

// Flush removes every entry from the table.
func (t *Table) Flush() {
	t.fwd = make(map[key]int)
	t.reverse = make(map[int]map[key]struct{})
}
