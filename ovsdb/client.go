// Copyright 2017 DigitalOcean.
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

package ovsdb

import (
	"context"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mixih/swarmctl/ovsdb/internal/jsonrpc"
)

// A Client is an OVSDB client.
type Client struct {
	c  *jsonrpc.Conn
	ll *log.Logger

	nextID int64

	mu        sync.Mutex
	callbacks map[string]chan rpcResponse

	statsMu sync.Mutex
	stats   ClientStats

	echoInterval time.Duration
	closeC       chan struct{}
	wg           sync.WaitGroup
}

// ClientStats contains runtime counters for a Client, useful for
// detecting leaked RPC callbacks or a stalled echo keepalive loop.
type ClientStats struct {
	// Callbacks tracks in-flight RPC callbacks awaiting a response.
	Callbacks struct {
		Current int
	}

	// EchoLoop tracks the outcome of echo keepalive RPCs, whether
	// initiated by EchoInterval or in reply to a server-sent echo.
	EchoLoop struct {
		Success int64
		Failure int64
	}
}

// An OptionFunc is a function which can configure a Client.
type OptionFunc func(c *Client) error

// Debug enables debug logging for a Client.
func Debug(ll *log.Logger) OptionFunc {
	return func(c *Client) error {
		c.ll = ll
		return nil
	}
}

// EchoInterval configures a Client to periodically send "echo" RPCs to
// the OVSDB server at the given interval, to detect a stalled
// connection before an operation that relies on it times out.
func EchoInterval(d time.Duration) OptionFunc {
	return func(c *Client) error {
		c.echoInterval = d
		return nil
	}
}

// Dial dials a connection to an OVSDB server and returns a Client.
func Dial(network, addr string, options ...OptionFunc) (*Client, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}

	return New(conn, options...)
}

// New wraps an existing connection to an OVSDB server and returns a Client.
func New(conn net.Conn, options ...OptionFunc) (*Client, error) {
	client := &Client{
		callbacks: make(map[string]chan rpcResponse),
		closeC:    make(chan struct{}),
	}
	for _, o := range options {
		if err := o(client); err != nil {
			return nil, err
		}
	}

	client.c = jsonrpc.NewConn(conn, client.ll)

	client.wg.Add(1)
	go client.loop()

	if client.echoInterval > 0 {
		client.wg.Add(1)
		go client.echoLoop(client.echoInterval)
	}

	return client, nil
}

// Close closes a Client's connection and stops its background loops.
func (c *Client) Close() error {
	close(c.closeC)
	err := c.c.Close()
	c.wg.Wait()
	return err
}

// Stats returns a snapshot of the Client's runtime counters.
func (c *Client) Stats() ClientStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// ListDatabases returns the name of all databases known to the OVSDB server.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	var dbs []string
	if err := c.rpc(ctx, "list_dbs", &dbs, nil); err != nil {
		return nil, err
	}

	return dbs, nil
}

// Echo performs an OVSDB echo RPC, used to verify that the connection
// to the server is still alive.
func (c *Client) Echo(ctx context.Context) error {
	var out interface{}
	return c.rpc(ctx, "echo", &out, []string{"swarmctl"})
}

// A TransactResult is a single operation's result from a Transact call.
type TransactResult map[string]interface{}

// Transact performs one or more TransactOps against the named database
// as a single OVSDB transaction, and returns one TransactResult per op.
func (c *Client) Transact(ctx context.Context, database string, ops []TransactOp) ([]TransactResult, error) {
	var out []TransactResult
	if err := c.rpc(ctx, "transact", &out, transactArg{Database: database, Ops: ops}); err != nil {
		return nil, err
	}

	return out, nil
}

// rpc performs a single RPC request and checks the response for errors.
// It registers a callback keyed by a locally generated request ID, and
// the receive loop delivers the matching response (or the request
// fails if ctx is done first).
func (c *Client) rpc(ctx context.Context, method string, out interface{}, params interface{}) error {
	id := strconv.FormatInt(atomic.AddInt64(&c.nextID, 1), 10)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	c.callbacks[id] = ch
	c.mu.Unlock()
	c.adjustCallbacks(1)

	defer func() {
		c.mu.Lock()
		delete(c.callbacks, id)
		c.mu.Unlock()
		c.adjustCallbacks(-1)
	}()

	if err := c.c.Send(jsonrpc.Request{ID: id, Method: method, Params: params}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		r := result{Reply: out}
		return rpcResult(res, &r)
	}
}

func (c *Client) adjustCallbacks(delta int) {
	c.statsMu.Lock()
	c.stats.Callbacks.Current += delta
	c.statsMu.Unlock()
}

// loop receives JSON-RPC messages for the lifetime of the connection,
// dispatching responses to their waiting callback and server-initiated
// requests (currently only "echo") to their handler.
func (c *Client) loop() {
	defer c.wg.Done()

	for {
		res, err := c.c.Receive()
		if err != nil {
			return
		}

		// A non-empty Method indicates a server-initiated request or
		// notification rather than a reply to one of our own RPCs.
		if res.Method != "" {
			c.handleNotification(res)
			continue
		}

		if res.ID == nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.callbacks[*res.ID]
		c.mu.Unlock()
		if !ok {
			// No callback registered for this ID: either a stale
			// reply to an RPC whose context already expired, or a
			// server bug. Either way, drop it.
			continue
		}

		ch <- rpcResponse{Result: res.Result, Error: res.Err()}
	}
}

// handleNotification reacts to a server-initiated request. ovsdb-server
// occasionally probes liveness with its own "echo" request; the
// response that matters to it is that the Client issues an RPC in
// return, so reuse the same echo path counted by EchoLoop.
func (c *Client) handleNotification(res *jsonrpc.Response) {
	if res.Method != "echo" {
		return
	}
	go c.echoOnce()
}

// echoLoop periodically issues echo RPCs until the Client is closed.
func (c *Client) echoLoop(d time.Duration) {
	defer c.wg.Done()

	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-c.closeC:
			return
		case <-t.C:
			c.echoOnce()
		}
	}
}

func (c *Client) echoOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Echo(ctx)

	c.statsMu.Lock()
	if err != nil {
		c.stats.EchoLoop.Failure++
	} else {
		c.stats.EchoLoop.Success++
	}
	c.statsMu.Unlock()
}
