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
	"fmt"
	"time"

	"github.com/mixih/swarmctl/ovsdb"
)

// logOVSDBPortConfig is the optional side-channel the harness uses to
// report a real OVS bridge's interfaces (name, mac_in_use and ofport of
// each Interface row; NO_FLOOD is not queried) alongside an in-process
// fabric run. It has no bearing on the
// simulated delivery results: flowinstall always learns port.Ports()
// from the openflow.Connection given to it, never from this query.
func logOVSDBPortConfig(sock string) error {
	c, err := ovsdb.Dial("unix", sock)
	if err != nil {
		return fmt.Errorf("ovsdb: dial %s: %w", sock, err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dbs, err := c.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("ovsdb: list databases: %w", err)
	}

	for _, db := range dbs {
		results, err := c.Transact(ctx, db, []ovsdb.TransactOp{
			ovsdb.Select{Table: "Interface"},
		})
		if err != nil {
			return fmt.Errorf("ovsdb: select Interface in %s: %w", db, err)
		}

		// One TransactResult per op; a Select's rows live under "rows".
		for _, res := range results {
			rows, _ := res["rows"].([]interface{})
			for _, r := range rows {
				row, _ := r.(map[string]interface{})
				fmt.Printf("ovsdb: %s: name=%v mac_in_use=%v ofport=%v\n",
					db, row["name"], row["mac_in_use"], row["ofport"])
			}
		}
	}

	return nil
}
