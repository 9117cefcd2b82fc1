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
	"os"

	"github.com/google/subcommands"

	"github.com/mixih/swarmctl/cmd/swarmctl-harness/internal/fabric"
)

type replayCmd struct {
	timesteps int
	seed      int64
	hostCount int
}

func (*replayCmd) Name() string { return "replay" }
func (*replayCmd) Synopsis() string {
	return "re-run a recorded link-event script for reproducibility"
}
func (*replayCmd) Usage() string {
	return "replay [flags] <csv-basename>\n\n" +
		"Reads <csv-basename>_events.csv, written by a prior run, and writes\n" +
		"<csv-basename>_replay_results.csv.\n"
}

func (c *replayCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.timesteps, "t", 100, "number of simulated timesteps; must match the run that produced the event script")
	f.IntVar(&c.timesteps, "timesteps", 100, "number of simulated timesteps")
	f.Int64Var(&c.seed, "s", 1, "PRNG seed; must match the run that produced the event script")
	f.Int64Var(&c.seed, "seed", 1, "PRNG seed")
	f.IntVar(&c.hostCount, "c", 4, "number of simulated hosts/switches")
	f.IntVar(&c.hostCount, "host-count", 4, "number of simulated hosts/switches")
}

func (c *replayCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "replay: expected exactly one positional argument, a csv basename")
		return subcommands.ExitUsageError
	}

	basename := f.Arg(0)
	eventsFile, err := os.Open(basename + "_events.csv")
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	defer eventsFile.Close()

	events, err := fabric.ReadEvents(eventsFile)
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}

	resultsPath := basename + "_replay_results.csv"
	resultsFile, err := os.Create(resultsPath)
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	defer resultsFile.Close()

	cfg := fabric.Config{
		Timesteps: c.timesteps,
		Seed:      c.seed,
		HostCount: c.hostCount,
	}

	if err := fabric.Replay(cfg, events, resultsFile); err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("wrote %s\n", resultsPath)
	return subcommands.ExitSuccess
}
