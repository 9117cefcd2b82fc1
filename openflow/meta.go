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

package openflow

// Kind is the high-level classification of a PacketIn's payload, used to
// pick between the ARP proxy and the forward path.
type Kind int

// Kind values.
const (
	KindUnknown Kind = iota
	KindARP
	KindIPv4
)

// PacketMeta is the information a routing engine's pre-routing hook is
// handed, ahead of the controller's own MAC learning and ARP/forward
// dispatch.
type PacketMeta struct {
	DPID   int
	InPort int
	Frame  EthFrame
}
