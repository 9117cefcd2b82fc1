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
	"math"
	"math/rand"
	"sort"

	"github.com/mixih/swarmctl/netstate"
	"github.com/mixih/swarmctl/openflow"
	"github.com/mixih/swarmctl/swaddr"
	"github.com/mixih/swarmctl/topology"
)

// ACO default parameters.
const (
	acoDefaultMinAnts              = 10
	acoDefaultAlpha                = 1.0
	acoDefaultBeta                 = 2.0
	acoDefaultEvaporationRate      = 0.5
	acoDefaultConvergenceThreshold = 0.1
	acoDefaultMaxIterations        = 5
)

// edgeKey identifies a directed edge by its endpoints, used to track
// per-edge pheromone across iterations for convergence detection: keying
// this by dpid alone cannot detect per-edge convergence.
type edgeKey struct{ from, to int }

// antStep is one hop of an ant's path: the dpid it is standing on, and the
// edge it used to arrive there (nil for the starting node).
type antStep struct {
	dpid int
	edge *topology.Edge
}

// ACO is an ant-colony-optimization engine: a swarm of stochastic agents
// deposits pheromone on the edges of the paths they traverse, biasing
// future ants toward the cheapest discovered routes.
type ACO struct {
	state *netstate.State
	log   *log.Logger
	rng   *rand.Rand

	numAnts              int
	alpha, beta          float64
	evaporationRate      float64
	convergenceThreshold float64
	maxIterations        int

	prevPheromone map[edgeKey]float64
}

// ACOOption configures an ACO engine.
type ACOOption func(*ACO)

// WithACOLogger overrides the engine's logger.
func WithACOLogger(l *log.Logger) ACOOption {
	return func(a *ACO) { a.log = l }
}

// WithACORNG injects the random source ants use to choose their next hop,
// so evaluation scenarios can be made reproducible.
func WithACORNG(rng *rand.Rand) ACOOption {
	return func(a *ACO) { a.rng = rng }
}

// WithACOParams overrides alpha, beta, and the evaporation rate.
func WithACOParams(alpha, beta, evaporationRate float64) ACOOption {
	return func(a *ACO) {
		a.alpha = alpha
		a.beta = beta
		a.evaporationRate = evaporationRate
	}
}

// WithACOConvergence overrides the convergence threshold and iteration cap.
func WithACOConvergence(threshold float64, maxIterations int) ACOOption {
	return func(a *ACO) {
		a.convergenceThreshold = threshold
		a.maxIterations = maxIterations
	}
}

// NewACO returns an ACO engine bound to state.
func NewACO(state *netstate.State, opts ...ACOOption) *ACO {
	a := &ACO{
		state:                state,
		log:                  discardLogger(),
		rng:                  rand.New(rand.NewSource(1)),
		numAnts:              acoDefaultMinAnts,
		alpha:                acoDefaultAlpha,
		beta:                 acoDefaultBeta,
		evaporationRate:      acoDefaultEvaporationRate,
		convergenceThreshold: acoDefaultConvergenceThreshold,
		maxIterations:        acoDefaultMaxIterations,
		prevPheromone:        make(map[edgeKey]float64),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// OnConnectionUp implements Engine: keeps the ant population proportional
// to the square of the node count.
func (a *ACO) OnConnectionUp(dpid int) {
	a.adjustAntPopulation()
}

func (a *ACO) adjustAntPopulation() {
	n := len(a.state.Graph.Nodes())
	desired := n * n
	if desired < acoDefaultMinAnts {
		desired = acoDefaultMinAnts
	}
	if desired != a.numAnts {
		a.numAnts = desired
		a.log.Printf("aco: adjusted ant population to %d for %d nodes", a.numAnts, n)
	}
}

// OnLinkEvent implements Engine: on removal, pheromones are cleared so the
// swarm is not anchored by stale chemistry.
func (a *ACO) OnLinkEvent(ev openflow.LinkEvent) {
	if ev.Removed {
		a.state.Graph.ClearPheromones()
		a.prevPheromone = make(map[edgeKey]float64)
	}
}

// OnPacketInPrerouting implements Engine: recompute (run the swarm to
// convergence) if the graph is dirty.
func (a *ACO) OnPacketInPrerouting(meta openflow.PacketMeta, kind openflow.Kind) bool {
	if a.state.Dirty() {
		a.run()
		a.state.ClearDirty()
	}
	return true
}

// OnPacketInPostrouting implements Engine. ACO has no postrouting work.
func (a *ACO) OnPacketInPostrouting(ev openflow.PacketIn) {}

// run executes the iterate-until-convergence loop.
func (a *ACO) run() {
	nodeIDs := a.sortedNodeIDs()
	if len(nodeIDs) == 0 {
		return
	}

	var lastPaths [][]antStep
	iteration := 0
	converged := false

	for iteration < a.maxIterations {
		for dpid := range a.state.Graph.Nodes() {
			if table, ok := a.state.Table(dpid); ok {
				table.Flush()
			}
		}

		iteration++
		paths := make([][]antStep, 0, a.numAnts)
		for i := 0; i < a.numAnts; i++ {
			start := nodeIDs[a.rng.Intn(len(nodeIDs))]
			paths = append(paths, a.runAnt(start))
		}
		lastPaths = paths

		converged = a.evaluateConvergence()
		if converged {
			a.log.Printf("aco: converged after %d iterations", iteration)
			break
		}
		a.log.Printf("aco: not converged, continuing to iteration %d", iteration+1)
		a.state.Graph.Evaporate(a.evaporationRate)
	}
	if !converged {
		a.log.Printf("aco: hit iteration cap (%d) without converging", a.maxIterations)
	}

	a.materialize(lastPaths)
	a.state.BroadcastFlowDelete()
}

func (a *ACO) sortedNodeIDs() []int {
	ids := make([]int, 0, len(a.state.Graph.Nodes()))
	for dpid := range a.state.Graph.Nodes() {
		ids = append(ids, dpid)
	}
	sort.Ints(ids)
	return ids
}

// evaluateConvergence compares the current pheromone level of every
// directed edge against the value observed on the previous call, reporting
// convergence only if every edge's absolute change is within threshold.
// This is deliberately per-edge, not per-dpid.
func (a *ACO) evaluateConvergence() bool {
	converged := true
	next := make(map[edgeKey]float64)
	for dpid, node := range a.state.Graph.Nodes() {
		for neighbor, edge := range node.Edges {
			k := edgeKey{from: dpid, to: neighbor}
			if prev, ok := a.prevPheromone[k]; ok {
				if math.Abs(edge.Pheromone-prev) > a.convergenceThreshold {
					converged = false
				}
			} else {
				converged = false
			}
			next[k] = edge.Pheromone
		}
	}
	a.prevPheromone = next
	return converged
}

// runAnt walks a single stochastic path from start until it can no longer
// reach an unvisited neighbor, depositing pheromone on every traversed edge
// in both directions.
func (a *ACO) runAnt(start int) []antStep {
	path := []antStep{{dpid: start}}
	visited := map[int]bool{start: true}
	current := start
	distance := 0.0

	for {
		next, edge := a.selectNext(current, visited)
		if next == -1 {
			break
		}
		visited[next] = true
		path = append(path, antStep{dpid: next, edge: edge})
		distance += float64(edge.Cost)
		current = next
	}

	if distance > 0 {
		deposit := 1.0 / distance
		for i := 1; i < len(path); i++ {
			a.state.Graph.Deposit(path[i-1].dpid, path[i].dpid, deposit)
		}
	}
	return path
}

// selectNext picks current's next hop: weighted by pheromone^alpha *
// (1/cost)^beta among unvisited neighbors, falling back to a uniform
// random unvisited neighbor if every weight is zero.
func (a *ACO) selectNext(current int, visited map[int]bool) (int, *topology.Edge) {
	node := a.state.Graph.Node(current)
	if node == nil || len(node.Edges) == 0 {
		return -1, nil
	}

	neighbors := make([]int, 0, len(node.Edges))
	for nb := range node.Edges {
		neighbors = append(neighbors, nb)
	}
	sort.Ints(neighbors)

	weights := make([]float64, len(neighbors))
	total := 0.0
	anyUnvisited := false
	for i, nb := range neighbors {
		if visited[nb] {
			continue
		}
		anyUnvisited = true
		edge := node.Edges[nb]
		weights[i] = math.Pow(edge.Pheromone, a.alpha) * math.Pow(1.0/float64(edge.Cost), a.beta)
		total += weights[i]
	}
	if !anyUnvisited {
		return -1, nil
	}

	if total == 0 {
		var candidates []int
		for i, nb := range neighbors {
			if !visited[nb] {
				candidates = append(candidates, i)
			}
		}
		idx := candidates[a.rng.Intn(len(candidates))]
		return neighbors[idx], node.Edges[neighbors[idx]]
	}

	r := a.rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		cum += w
		if r <= cum && w > 0 {
			return neighbors[i], node.Edges[neighbors[i]]
		}
	}
	// Floating point rounding can leave r fractionally beyond the running
	// sum; fall back to the last non-zero candidate.
	for i := len(neighbors) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return neighbors[i], node.Edges[neighbors[i]]
		}
	}
	return -1, nil
}

// materialize translates the most recent round of ant paths into concrete
// forwarding-table entries, keeping only the cheapest path observed for
// each (start, end) pair and learning it bidirectionally.
func (a *ACO) materialize(paths [][]antStep) {
	bestCost := make(map[[2]int]int)

	for _, path := range paths {
		if len(path) < 2 {
			continue
		}
		start := path[0].dpid
		end := path[len(path)-1].dpid
		cost := 0
		for i := 1; i < len(path); i++ {
			cost += path[i].edge.Cost
		}

		key := [2]int{start, end}
		if existing, ok := bestCost[key]; ok && cost >= existing {
			continue
		}
		bestCost[key] = cost

		startMAC := swaddr.DPIDMAC(start)
		endMAC := swaddr.DPIDMAC(end)
		for i := 1; i < len(path); i++ {
			u := path[i-1].dpid
			v := path[i].dpid
			edge := path[i].edge

			if table, ok := a.state.Table(u); ok {
				table.Set(endMAC, edge.SourcePort)
			}
			if table, ok := a.state.Table(v); ok {
				table.Set(startMAC, edge.DestPort)
			}
		}
	}
}
