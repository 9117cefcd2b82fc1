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

package routing

import (
	"log"
	"net"

	"github.com/mixih/swarmctl/netstate"
	"github.com/mixih/swarmctl/openflow"
	"github.com/mixih/swarmctl/swaddr"
	"github.com/mixih/swarmctl/topology"
)

// dvIterationCap bounds the number of full relaxation passes a single
// recomputation will run before giving up.
const dvIterationCap = 1000

// macKey is a comparable map key for a net.HardwareAddr.
type macKey string

func keyOf(mac net.HardwareAddr) macKey { return macKey(mac.String()) }

func (k macKey) mac() net.HardwareAddr {
	mac, _ := net.ParseMAC(string(k))
	return mac
}

// DistanceVector is a Bellman-Ford-style engine: every switch relaxes its
// distance table against its neighbors' cached tables until a full pass
// over all switches produces no change.
type DistanceVector struct {
	state *netstate.State
	log   *log.Logger
	dv    map[int]map[macKey]int
}

// DistanceVectorOption configures a DistanceVector engine.
type DistanceVectorOption func(*DistanceVector)

// WithDistanceVectorLogger overrides the engine's logger.
func WithDistanceVectorLogger(l *log.Logger) DistanceVectorOption {
	return func(d *DistanceVector) { d.log = l }
}

// NewDistanceVector returns a DistanceVector engine bound to state.
func NewDistanceVector(state *netstate.State, opts ...DistanceVectorOption) *DistanceVector {
	d := &DistanceVector{
		state: state,
		log:   discardLogger(),
		dv:    make(map[int]map[macKey]int),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// OnConnectionUp implements Engine: the new switch starts with an empty DV,
// to be populated by the next recomputation.
func (d *DistanceVector) OnConnectionUp(dpid int) {
	d.dv[dpid] = make(map[macKey]int)
}

// OnLinkEvent implements Engine: on removal, both endpoints forget their DV
// entirely so they re-learn from scratch rather than carrying stale
// distances forward.
func (d *DistanceVector) OnLinkEvent(ev openflow.LinkEvent) {
	if !ev.Removed {
		return
	}
	d.dv[ev.Link.DPID1] = make(map[macKey]int)
	d.dv[ev.Link.DPID2] = make(map[macKey]int)
}

// OnPacketInPrerouting implements Engine: recompute to a fixed point if the
// graph is dirty.
func (d *DistanceVector) OnPacketInPrerouting(meta openflow.PacketMeta, kind openflow.Kind) bool {
	if d.state.Dirty() {
		d.runToFixedPoint()
		d.state.ClearDirty()
	}
	return true
}

// OnPacketInPostrouting implements Engine. DistanceVector has no
// postrouting work.
func (d *DistanceVector) OnPacketInPostrouting(ev openflow.PacketIn) {}

func (d *DistanceVector) runToFixedPoint() {
	i := 0
	for i < dvIterationCap {
		updated := false
		for dpid, node := range d.state.Graph.Nodes() {
			if d.updateNode(dpid, node) {
				updated = true
			}
		}
		if !updated {
			break
		}
		i++
	}
	if i >= dvIterationCap {
		d.log.Printf("distance-vector: hit iteration cap (%d) without converging", dvIterationCap)
	}
	d.state.BroadcastFlowDelete()
}

func (d *DistanceVector) updateNode(dpid int, node *topology.Node) bool {
	if d.dv[dpid] == nil {
		d.dv[dpid] = make(map[macKey]int)
	}

	newDV := map[macKey]int{keyOf(swaddr.DPIDMAC(dpid)): 0}
	newTable := make(map[macKey]int)

	for neighbor, edge := range node.Edges {
		for mac, cost := range d.dv[neighbor] {
			nextHopCost := cost + edge.Cost
			existing, known := newDV[mac]
			if !known || (existing != 0 && nextHopCost < existing) {
				newDV[mac] = nextHopCost
				newTable[mac] = edge.SourcePort
			}
		}
	}

	if dvEqual(newDV, d.dv[dpid]) {
		return false
	}

	d.dv[dpid] = newDV
	table, ok := d.state.Table(dpid)
	if !ok {
		return true
	}
	table.Flush()
	for mac, port := range newTable {
		table.Set(mac.mac(), port)
	}
	return true
}

func dvEqual(a, b map[macKey]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
