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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/google/subcommands"

	"github.com/mixih/swarmctl/cmd/swarmctl-harness/internal/fabric"
	"github.com/mixih/swarmctl/datapath/netlinksim"
)

type runCmd struct {
	timesteps     int
	seed          int64
	startingLinks int
	dynamicLinks  bool
	controllerIP  string
	hostCount     int
	ovsdbSock     string
	realDatapath  bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "drive a simulated switch/host fabric on a schedule" }
func (*runCmd) Usage() string {
	return "run [flags] <csv-basename>\n\n" +
		"Writes <csv-basename>_results.csv (one row per injected packet) and\n" +
		"<csv-basename>_events.csv (one row per scheduled link transition).\n"
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.timesteps, "t", 100, "number of simulated timesteps")
	f.IntVar(&c.timesteps, "timesteps", 100, "number of simulated timesteps")
	f.Int64Var(&c.seed, "s", 1, "PRNG seed")
	f.Int64Var(&c.seed, "seed", 1, "PRNG seed")
	f.IntVar(&c.startingLinks, "starting-links", 0, "inter-switch links present before the schedule begins")
	f.BoolVar(&c.dynamicLinks, "dynamic-links", false, "toggle a random link up or down each timestep")
	f.StringVar(&c.controllerIP, "controller-ip", "127.0.0.1", "address the simulated switches dial (unused by the in-process fabric; validated only)")
	f.IntVar(&c.hostCount, "c", 4, "number of simulated hosts/switches")
	f.IntVar(&c.hostCount, "host-count", 4, "number of simulated hosts/switches")
	f.StringVar(&c.ovsdbSock, "ovsdb-sock", "", "optional: print each Interface's name, mac_in_use and ofport from a live ovsdb-server socket before the run (diagnostic only; never feeds into delivery results)")
	f.BoolVar(&c.realDatapath, "real-datapath", false, "mirror every installed FlowMod onto a real generic-netlink swarmctl_sim socket, if the family is registered")
}

func (c *runCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "run: expected exactly one positional argument, a csv basename")
		return subcommands.ExitUsageError
	}
	if net.ParseIP(c.controllerIP) == nil {
		fmt.Fprintf(os.Stderr, "run: invalid --controller-ip %q\n", c.controllerIP)
		return subcommands.ExitUsageError
	}

	if c.ovsdbSock != "" {
		if err := logOVSDBPortConfig(c.ovsdbSock); err != nil {
			log.Print(err)
			return subcommands.ExitFailure
		}
	}

	var sim *netlinksim.Simulator
	if c.realDatapath {
		s, err := netlinksim.Dial()
		switch {
		case err == nil:
			sim = s
			defer sim.Close()
		case os.IsNotExist(err):
			log.Printf("run: swarmctl_sim generic-netlink family not registered, continuing without a real datapath mirror")
		default:
			log.Print(err)
			return subcommands.ExitFailure
		}
	}

	basename := f.Arg(0)
	resultsPath := basename + "_results.csv"
	eventsPath := basename + "_events.csv"

	resultsFile, err := os.Create(resultsPath)
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	defer resultsFile.Close()

	eventsFile, err := os.Create(eventsPath)
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	defer eventsFile.Close()

	cfg := fabric.Config{
		Timesteps:     c.timesteps,
		Seed:          c.seed,
		StartingLinks: c.startingLinks,
		DynamicLinks:  c.dynamicLinks,
		ControllerIP:  c.controllerIP,
		HostCount:     c.hostCount,
		Sim:           sim,
	}

	if err := fabric.Run(cfg, resultsFile, eventsFile); err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("wrote %s and %s\n", resultsPath, eventsPath)
	return subcommands.ExitSuccess
}
