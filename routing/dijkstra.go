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
	"container/heap"
	"log"

	"github.com/mixih/swarmctl/netstate"
	"github.com/mixih/swarmctl/openflow"
	"github.com/mixih/swarmctl/swaddr"
	"github.com/mixih/swarmctl/topology"
)

// pqItem is a (dpid, accumulated cost) pair ordered by cost only:
// priorityQueue.Less compares cost and never looks at dpid, so ties are
// broken arbitrarily.
type pqItem struct {
	dpid int
	cost int
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].cost < pq[j].cost }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// Dijkstra runs single-source shortest paths from every switch (spec
// §4.4), using a priority queue keyed by accumulated unit cost.
type Dijkstra struct {
	state *netstate.State
	log   *log.Logger
}

// DijkstraOption configures a Dijkstra engine.
type DijkstraOption func(*Dijkstra)

// WithDijkstraLogger overrides the engine's logger.
func WithDijkstraLogger(l *log.Logger) DijkstraOption {
	return func(d *Dijkstra) { d.log = l }
}

// NewDijkstra returns a Dijkstra engine bound to state.
func NewDijkstra(state *netstate.State, opts ...DijkstraOption) *Dijkstra {
	d := &Dijkstra{state: state, log: discardLogger()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// OnConnectionUp implements Engine. Dijkstra needs no per-switch setup.
func (d *Dijkstra) OnConnectionUp(dpid int) {}

// OnLinkEvent implements Engine. Dijkstra recomputes lazily on the next
// PacketIn, so there is nothing to do here beyond what flowinstall.Core
// already did to the shared graph and dirty flag.
func (d *Dijkstra) OnLinkEvent(ev openflow.LinkEvent) {}

// OnPacketInPrerouting implements Engine: if the graph is dirty, recompute
// every switch's forwarding table from scratch.
func (d *Dijkstra) OnPacketInPrerouting(meta openflow.PacketMeta, kind openflow.Kind) bool {
	if d.state.Dirty() {
		d.recompute()
		d.state.ClearDirty()
	}
	return true
}

// OnPacketInPostrouting implements Engine. Dijkstra has no postrouting work.
func (d *Dijkstra) OnPacketInPostrouting(ev openflow.PacketIn) {}

func (d *Dijkstra) recompute() {
	for s := range d.state.Graph.Nodes() {
		d.recomputeFrom(s)
	}
	d.state.BroadcastFlowDelete()
}

func (d *Dijkstra) recomputeFrom(s int) {
	dist := map[int]int{s: 0}
	pred := map[int]int{}
	predEdge := map[int]*topology.Edge{}
	visited := map[int]bool{}

	pq := &priorityQueue{{dpid: s, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		u := heap.Pop(pq).(pqItem)
		if visited[u.dpid] {
			continue
		}
		visited[u.dpid] = true

		node := d.state.Graph.Node(u.dpid)
		if node == nil {
			continue
		}
		for neighbor, edge := range node.Edges {
			nd := u.cost + edge.Cost
			if existing, ok := dist[neighbor]; !ok || nd < existing {
				dist[neighbor] = nd
				pred[neighbor] = u.dpid
				predEdge[neighbor] = edge
				heap.Push(pq, pqItem{dpid: neighbor, cost: nd})
			}
		}
	}

	table, ok := d.state.Table(s)
	if !ok {
		return
	}
	table.Flush()

	nextHop := map[int]int{}
	var resolve func(dst int) int
	resolve = func(dst int) int {
		if port, ok := nextHop[dst]; ok {
			return port
		}
		var port int
		if pred[dst] == s {
			port = predEdge[dst].SourcePort
		} else {
			port = resolve(pred[dst])
		}
		nextHop[dst] = port
		return port
	}

	for dpid := range dist {
		if dpid == s {
			continue
		}
		port := resolve(dpid)
		table.Set(swaddr.DPIDMAC(dpid), port)
	}
}
