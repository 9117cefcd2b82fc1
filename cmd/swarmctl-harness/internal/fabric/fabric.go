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

// Package fabric drives an in-process simulated switch/host fabric
// against a real controller.Controller on a schedule of link up/down
// events and ping-style packet injection, recording the result of each
// injected packet to a CSV writer. It has no algorithmic role of its
// own: every forwarding decision it observes came from flowinstall and
// the active routing.Engine.
package fabric

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"

	"github.com/mixih/swarmctl/controller"
	"github.com/mixih/swarmctl/datapath/netlinksim"
	"github.com/mixih/swarmctl/netstate"
	"github.com/mixih/swarmctl/openflow"
	"github.com/mixih/swarmctl/routing"
	"github.com/mixih/swarmctl/swaddr"
)

// maxHostCount is the hard ceiling on Config.HostCount. Host and switch
// identity share a single low byte of a synthetic MAC (swaddr), so a
// count at or above this is a caller bug, not a runtime condition to
// recover from.
const maxHostCount = 256

// Config is the schedule a fabric run or replay follows.
type Config struct {
	Timesteps     int
	Seed          int64
	StartingLinks int
	DynamicLinks  bool
	ControllerIP  string
	HostCount     int

	// Sim, if non-nil, receives a mirrored InstallFlow call for every
	// FlowMod the controller sends to a simulated switch. Left nil for
	// an ordinary in-process run.
	Sim *netlinksim.Simulator
}

// validate panics if cfg carries a programmer error rather than a
// recoverable condition, per the harness's "assertion failure" policy.
func (cfg Config) validate() {
	if cfg.HostCount >= maxHostCount {
		panic(fmt.Sprintf("fabric: host_count %d >= %d", cfg.HostCount, maxHostCount))
	}
	if cfg.HostCount < 1 {
		panic(fmt.Sprintf("fabric: host_count %d must be positive", cfg.HostCount))
	}
}

// LinkEvent is one scheduled link transition, the unit replay reads back
// from the event script a Run writes.
type LinkEvent struct {
	Timestep int
	Up       bool
	DPID1    int
	Port1    int
	DPID2    int
	Port2    int
}

// conn is the simulated per-switch control channel: it records every
// message the controller sends and answers Ports() from a fixed,
// harness-assigned port map, the same role an external OpenFlow
// collaborator's real connection would play. If sim is non-nil, every
// FlowMod sent through it is also mirrored onto a real generic-netlink
// socket via sim.InstallFlow.
type conn struct {
	dpid  int
	ports map[int]*openflow.Port
	sent  []openflow.Message
	sim   *netlinksim.Simulator
}

func (c *conn) DPID() int                     { return c.dpid }
func (c *conn) Ports() map[int]*openflow.Port { return c.ports }
func (c *conn) Send(msg openflow.Message) error {
	c.sent = append(c.sent, msg)
	if c.sim != nil {
		if fm, ok := msg.(openflow.FlowMod); ok {
			return c.sim.InstallFlow(c.dpid, fm)
		}
	}
	return nil
}

// fabric is the simulated network: one switch per host, a host directly
// attached to port 1 of its switch, and a pool of inter-switch links
// assigned over the remaining ports.
type fabric struct {
	cfg Config

	// topoRng generates random link up/down transitions. pingRng picks
	// each timestep's ping src/dst, independently of topoRng, so the
	// ping sequence is identical between a Run and a Replay regardless
	// of how many topology-toggle draws a DynamicLinks run happened to
	// make.
	topoRng *rand.Rand
	pingRng *rand.Rand

	ctl   *controller.Controller
	conns map[int]*conn
	links map[linkKey]openflow.Link // currently-up links, keyed low,high
	ports map[int]int               // next free port number per dpid
}

type linkKey struct{ a, b int }

func newLinkKey(a, b int) linkKey {
	if a > b {
		a, b = b, a
	}
	return linkKey{a, b}
}

func newFabric(cfg Config) *fabric {
	cfg.validate()

	state := netstate.New()
	ctl := controller.New(state, routing.NewDijkstra(state))

	f := &fabric{
		cfg:     cfg,
		topoRng: rand.New(rand.NewSource(cfg.Seed)),
		pingRng: rand.New(rand.NewSource(cfg.Seed + 1)),
		ctl:     ctl,
		conns: make(map[int]*conn, cfg.HostCount),
		links: make(map[linkKey]openflow.Link),
		ports: make(map[int]int, cfg.HostCount),
	}

	for dpid := 1; dpid <= cfg.HostCount; dpid++ {
		c := &conn{dpid: dpid, sim: cfg.Sim, ports: map[int]*openflow.Port{
			1: {PortNo: 1, HWAddr: swaddr.DPIDMAC(dpid)},
		}}
		f.conns[dpid] = c
		f.ports[dpid] = 2
		ctl.HandleConnectionUp(openflow.ConnectionUp{DPID: dpid, Conn: c})
	}

	return f
}

// addLink brings up a fresh link between two distinct switches that are
// not already directly connected, allocating the next free port on each
// side. It reports false if no such pair exists.
func (f *fabric) addLink() (openflow.Link, bool) {
	n := f.cfg.HostCount
	if n < 2 {
		return openflow.Link{}, false
	}

	for attempt := 0; attempt < n*n; attempt++ {
		a := 1 + f.topoRng.Intn(n)
		b := 1 + f.topoRng.Intn(n)
		if a == b {
			continue
		}
		if _, up := f.links[newLinkKey(a, b)]; up {
			continue
		}

		link := openflow.Link{DPID1: a, Port1: f.ports[a], DPID2: b, Port2: f.ports[b]}
		f.ports[a]++
		f.ports[b]++
		f.links[newLinkKey(a, b)] = link

		f.conns[a].ports[link.Port1] = &openflow.Port{PortNo: link.Port1, HWAddr: swaddr.DPIDMAC(a)}
		f.conns[b].ports[link.Port2] = &openflow.Port{PortNo: link.Port2, HWAddr: swaddr.DPIDMAC(b)}

		return link, true
	}
	return openflow.Link{}, false
}

// removeLink picks a currently-up link at random and tears it down,
// reporting the link removed, if any exist.
func (f *fabric) removeLink() (openflow.Link, bool) {
	if len(f.links) == 0 {
		return openflow.Link{}, false
	}
	keys := make([]linkKey, 0, len(f.links))
	for k := range f.links {
		keys = append(keys, k)
	}
	k := keys[f.topoRng.Intn(len(keys))]
	link := f.links[k]
	delete(f.links, k)
	return link, true
}

// ping injects a PacketIn at src's switch addressed to dst's switch (a
// host's synthetic MAC and its attached switch's synthetic MAC are
// identical, per swaddr), and reports whether the controller's reaction
// amounted to a delivery: true only if a flow was installed toward a
// concrete port. A flood (which may reach the destination, but was not a
// directed route) reports false.
func (f *fabric) ping(src, dst int) (delivered bool) {
	c, ok := f.conns[src]
	if !ok {
		return false
	}
	c.sent = nil

	f.ctl.HandlePacketIn(openflow.PacketIn{
		DPID: src,
		Port: 1,
		Parsed: openflow.EthFrame{
			Src:  swaddr.DPIDMAC(src),
			Dst:  swaddr.DPIDMAC(dst),
			Type: openflow.EtherTypeIPv4,
			Raw:  []byte{0},
		},
		Conn: c,
	})

	for _, msg := range c.sent {
		if _, ok := msg.(openflow.FlowMod); ok {
			return true
		}
	}
	return false
}

// Run drives cfg's schedule end to end, writing one CSV row per
// injected ping to results and, if events is non-nil, one row per
// scheduled link transition to events (so a later Replay can reproduce
// the same topology changes against a fresh fabric).
func Run(cfg Config, results, events io.Writer) error {
	f := newFabric(cfg)

	rw := csv.NewWriter(results)
	defer rw.Flush()
	if err := rw.Write([]string{"timestep", "src", "dst", "delivered"}); err != nil {
		return err
	}

	var ew *csv.Writer
	if events != nil {
		ew = csv.NewWriter(events)
		defer ew.Flush()
		if err := ew.Write([]string{"timestep", "op", "dpid1", "port1", "dpid2", "port2"}); err != nil {
			return err
		}
	}

	for i := 0; i < f.cfg.StartingLinks; i++ {
		link, ok := f.addLink()
		if !ok {
			break
		}
		f.ctl.HandleLinkEvent(openflow.LinkEvent{Added: true, Link: link})
		if err := writeEvent(ew, 0, true, link); err != nil {
			return err
		}
	}

	for t := 1; t <= f.cfg.Timesteps; t++ {
		if f.cfg.DynamicLinks {
			if f.topoRng.Intn(2) == 0 {
				if link, ok := f.addLink(); ok {
					f.ctl.HandleLinkEvent(openflow.LinkEvent{Added: true, Link: link})
					if err := writeEvent(ew, t, true, link); err != nil {
						return err
					}
				}
			} else {
				if link, ok := f.removeLink(); ok {
					f.ctl.HandleLinkEvent(openflow.LinkEvent{Removed: true, Link: link})
					if err := writeEvent(ew, t, false, link); err != nil {
						return err
					}
				}
			}
		}

		src := 1 + f.pingRng.Intn(f.cfg.HostCount)
		dst := 1 + f.pingRng.Intn(f.cfg.HostCount)
		delivered := f.ping(src, dst)
		if err := rw.Write([]string{
			itoa(t), itoa(src), itoa(dst), boolStr(delivered),
		}); err != nil {
			return err
		}
	}

	return nil
}

// Replay re-applies a recorded event script against a fresh fabric,
// followed by one ping per timestep exactly as Run does, so the same
// seed and script reproduce the same delivery results deterministically.
func Replay(cfg Config, script []LinkEvent, results io.Writer) error {
	f := newFabric(cfg)

	rw := csv.NewWriter(results)
	defer rw.Flush()
	if err := rw.Write([]string{"timestep", "src", "dst", "delivered"}); err != nil {
		return err
	}

	byTimestep := make(map[int][]LinkEvent, len(script))
	for _, e := range script {
		byTimestep[e.Timestep] = append(byTimestep[e.Timestep], e)
	}

	apply := func(t int) {
		for _, e := range byTimestep[t] {
			link := openflow.Link{DPID1: e.DPID1, Port1: e.Port1, DPID2: e.DPID2, Port2: e.Port2}
			if e.Up {
				f.conns[e.DPID1].ports[e.Port1] = &openflow.Port{PortNo: e.Port1, HWAddr: swaddr.DPIDMAC(e.DPID1)}
				f.conns[e.DPID2].ports[e.Port2] = &openflow.Port{PortNo: e.Port2, HWAddr: swaddr.DPIDMAC(e.DPID2)}
				f.ctl.HandleLinkEvent(openflow.LinkEvent{Added: true, Link: link})
			} else {
				f.ctl.HandleLinkEvent(openflow.LinkEvent{Removed: true, Link: link})
			}
		}
	}

	apply(0)
	for t := 1; t <= f.cfg.Timesteps; t++ {
		apply(t)
		src := 1 + f.pingRng.Intn(f.cfg.HostCount)
		dst := 1 + f.pingRng.Intn(f.cfg.HostCount)
		delivered := f.ping(src, dst)
		if err := rw.Write([]string{
			itoa(t), itoa(src), itoa(dst), boolStr(delivered),
		}); err != nil {
			return err
		}
	}

	return nil
}

// ReadEvents parses a link-event script in the format Run writes.
func ReadEvents(r io.Reader) ([]LinkEvent, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	events := make([]LinkEvent, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != 6 {
			return nil, fmt.Errorf("fabric: malformed event row: %v", row)
		}
		e := LinkEvent{}
		if _, err := fmt.Sscanf(row[0], "%d", &e.Timestep); err != nil {
			return nil, err
		}
		e.Up = row[1] == "up"
		if _, err := fmt.Sscanf(row[2], "%d", &e.DPID1); err != nil {
			return nil, err
		}
		if _, err := fmt.Sscanf(row[3], "%d", &e.Port1); err != nil {
			return nil, err
		}
		if _, err := fmt.Sscanf(row[4], "%d", &e.DPID2); err != nil {
			return nil, err
		}
		if _, err := fmt.Sscanf(row[5], "%d", &e.Port2); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func writeEvent(w *csv.Writer, t int, up bool, link openflow.Link) error {
	if w == nil {
		return nil
	}
	op := "down"
	if up {
		op = "up"
	}
	return w.Write([]string{itoa(t), op, itoa(link.DPID1), itoa(link.Port1), itoa(link.DPID2), itoa(link.Port2)})
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
