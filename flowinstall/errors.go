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

package flowinstall

import (
	"errors"
	"fmt"

	"github.com/mixih/swarmctl/openflow"
)

// ErrUnhandledEtherType is the sentinel wrapped by UnhandledFrameError.
// It never reaches a caller — unknown L2/L3 headers are logged and the
// packet dropped, not surfaced as an error — but it gives the log line
// a typed, checkable shape rather than an ad-hoc string.
var ErrUnhandledEtherType = errors.New("flowinstall: unhandled ethertype")

// UnhandledFrameError describes a PacketIn whose ethertype was neither
// ARP nor IPv4 (IPv6 is handled separately and dropped before this error
// would ever be constructed).
type UnhandledFrameError struct {
	DPID      int
	EtherType openflow.EtherType
}

func (e *UnhandledFrameError) Error() string {
	return fmt.Sprintf("switch %d: unhandled ethertype 0x%04x", e.DPID, uint16(e.EtherType))
}

func (e *UnhandledFrameError) Unwrap() error { return ErrUnhandledEtherType }
