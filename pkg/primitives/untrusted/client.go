// Copyright 2019 The Asylo Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package untrusted implements the host side of the primitives layer: the
// Client representing one loaded enclave instance, the exit-handler registry
// servicing calls the enclave makes outward, and the backend abstraction that
// performs the hardware-specific enter-enclave transition.
package untrusted

import (
	"sync/atomic"

	"github.com/donaldww/asylo/pkg/log"
	"github.com/donaldww/asylo/pkg/primitives"
	"github.com/donaldww/asylo/pkg/status"
)

// ErrClientClosed is returned by operations on a client that has been
// destroyed or has observed a fatal enclave error.
var ErrClientClosed = status.New(status.FailedPrecondition, "enclave client is closed")

// A Connection is a backend's handle to one loaded enclave instance. An
// EnclaveCall blocks the calling thread for the full duration of the enclave
// computation, including any nested exit calls. Destroy tears down the
// enclave's mapping; no calls are valid afterward.
type Connection interface {
	EnclaveCall(selector primitives.Selector, params *primitives.ParameterStack) error
	Destroy() error
}

// A Loader knows how to load one enclave image and wire its exit-call path to
// the given client. Implementations are backend-specific.
type Loader interface {
	Load(client *Client) (Connection, error)
}

// Client lifecycle states.
const (
	stateUsable uint32 = iota
	// stateClosed is entered when the enclave reports a fatal error; the
	// mapping still exists and Destroy may reclaim it.
	stateClosed
	stateDestroyed
)

// A Client represents one loaded enclave instance on the untrusted side. It
// owns the instance's exit-call provider and lifecycle state. Methods other
// than Destroy may be called concurrently from multiple host threads.
type Client struct {
	name         string
	exitProvider ExitCallProvider
	conn         Connection
	state        atomic.Uint32
}

// Load loads an enclave via the given backend loader, wires the exit-call
// provider, and invokes the enclave's init entry point. Failure of either the
// underlying load or the init entry fails the whole load, and nothing is left
// mapped.
func Load(name string, loader Loader, exitProvider ExitCallProvider) (*Client, error) {
	if exitProvider == nil {
		exitProvider = NewDispatchTable()
	}
	client := &Client{name: name, exitProvider: exitProvider}
	conn, err := loader.Load(client)
	if err != nil {
		return nil, err
	}
	client.conn = conn

	var params primitives.ParameterStack
	if err := conn.EnclaveCall(primitives.SelectorInit, &params); err != nil {
		if destroyErr := conn.Destroy(); destroyErr != nil {
			log.Warningf("destroying enclave %q after failed initialization: %v", name, destroyErr)
		}
		return nil, status.Newf(status.FromError(err).Code(), "enclave %q initialization failed: %v", name, err)
	}
	log.Debugf("loaded enclave %q", name)
	return client, nil
}

// Name returns the name the enclave was loaded under.
func (c *Client) Name() string {
	return c.name
}

// ExitCallProvider returns the registry servicing this instance's exit calls.
// Handlers must be registered before the selectors that use them are entered.
func (c *Client) ExitCallProvider() ExitCallProvider {
	return c.exitProvider
}

// IsClosed returns true if the instance can no longer service calls.
func (c *Client) IsClosed() bool {
	return c.state.Load() != stateUsable
}

// EnclaveCall enters the enclave at the entry handler bound to selector,
// blocking until the enclave returns control. The same stack carries
// arguments in and results out.
//
// If the enclave reports a fatal error, the client transitions to a closed
// state and all further calls fail fast with ErrClientClosed rather than
// re-entering a possibly-corrupted enclave.
func (c *Client) EnclaveCall(selector primitives.Selector, params *primitives.ParameterStack) error {
	if c.IsClosed() {
		return ErrClientClosed
	}
	switch selector {
	case primitives.SelectorInvalid:
		return status.New(status.InvalidArgument, "the invalid selector is not dispatchable")
	case primitives.SelectorInit, primitives.SelectorFini:
		return status.Newf(status.InvalidArgument, "selector %d is managed by the client lifecycle", selector)
	}
	err := c.conn.EnclaveCall(selector, params)
	if status.Is(err, status.Aborted) {
		if c.state.CompareAndSwap(stateUsable, stateClosed) {
			log.Warningf("enclave %q reported a fatal error; closing client: %v", c.name, err)
		}
	}
	return err
}

// DonateThread enters the enclave to donate the calling thread to its thread
// pool, blocking until the enclave releases it.
func (c *Client) DonateThread() error {
	if c.IsClosed() {
		return ErrClientClosed
	}
	var params primitives.ParameterStack
	return c.conn.EnclaveCall(primitives.SelectorDonateThread, &params)
}

// InvokeExitCall dispatches a call the enclave makes outward to the exit
// handler bound to selector. It is invoked by backends, on the thread that is
// blocked inside EnclaveCall.
func (c *Client) InvokeExitCall(selector primitives.Selector, params *primitives.ParameterStack) error {
	return c.exitProvider.InvokeExitHandler(selector, params, c)
}

// Destroy invokes the enclave's fini entry point and tears down the mapping.
// Calling Destroy twice is a caller error and fails with ErrClientClosed. A
// client closed by a fatal enclave error may still be destroyed; the fini
// entry is skipped since the enclave cannot be trusted to run it.
func (c *Client) Destroy() error {
	old := c.state.Swap(stateDestroyed)
	if old == stateDestroyed {
		return ErrClientClosed
	}
	var finiErr error
	if old == stateUsable {
		var params primitives.ParameterStack
		finiErr = c.conn.EnclaveCall(primitives.SelectorFini, &params)
	}
	if err := c.conn.Destroy(); err != nil {
		return err
	}
	log.Debugf("destroyed enclave %q", c.name)
	return finiErr
}
