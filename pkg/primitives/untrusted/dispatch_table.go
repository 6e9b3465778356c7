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

package untrusted

import (
	"github.com/donaldww/asylo/pkg/primitives"
	"github.com/donaldww/asylo/pkg/status"
	"github.com/donaldww/asylo/pkg/sync"
)

// An ExitCallback services one call out of the enclave. client is the
// instance the call originated from, context is the opaque pointer supplied
// at registration, and params carries the arguments pushed by the trusted
// side; results are pushed back onto the same stack.
type ExitCallback func(client *Client, context any, params *primitives.ParameterStack) error

// An ExitHandler binds an ExitCallback to the context it will be invoked
// with.
type ExitHandler struct {
	Callback ExitCallback
	Context  any
}

// An ExitCallProvider owns the untrusted side's exit-handler registry and
// dispatches calls the enclave makes outward.
type ExitCallProvider interface {
	// RegisterExitHandler binds a handler to an exit selector. It fails
	// with AlreadyExists if the selector is bound and with InvalidArgument
	// if the selector is reserved for the runtime.
	RegisterExitHandler(selector primitives.Selector, handler ExitHandler) error

	// InvokeExitHandler dispatches an exit call from the given client. It
	// fails with NotFound if no handler is bound to the selector.
	InvokeExitHandler(selector primitives.Selector, params *primitives.ParameterStack, client *Client) error
}

// DispatchTable is the default ExitCallProvider. Registration happens while
// the client is being initialized; dispatch afterward takes only the read
// side of the lock, so concurrent exit calls from separate enclave threads do
// not contend.
type DispatchTable struct {
	mu       sync.RWMutex
	handlers map[primitives.Selector]ExitHandler
}

var _ ExitCallProvider = (*DispatchTable)(nil)

// NewDispatchTable returns an empty DispatchTable.
func NewDispatchTable() *DispatchTable {
	return &DispatchTable{handlers: make(map[primitives.Selector]ExitHandler)}
}

// RegisterExitHandler implements ExitCallProvider.RegisterExitHandler.
func (d *DispatchTable) RegisterExitHandler(selector primitives.Selector, handler ExitHandler) error {
	if selector == primitives.SelectorInvalid {
		return status.New(status.InvalidArgument, "the invalid selector is not registrable")
	}
	if selector < primitives.SelectorHostCall {
		return status.Newf(status.InvalidArgument, "exit selector %d is reserved for the runtime", selector)
	}
	if handler.Callback == nil {
		return status.Newf(status.InvalidArgument, "nil callback for exit selector %d", selector)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[selector]; ok {
		return status.Newf(status.AlreadyExists, "exit selector %d is already bound", selector)
	}
	d.handlers[selector] = handler
	return nil
}

// InvokeExitHandler implements ExitCallProvider.InvokeExitHandler.
func (d *DispatchTable) InvokeExitHandler(selector primitives.Selector, params *primitives.ParameterStack, client *Client) error {
	d.mu.RLock()
	handler, ok := d.handlers[selector]
	d.mu.RUnlock()
	if !ok {
		return status.Newf(status.NotFound, "no exit handler registered for selector %d", selector)
	}
	return handler.Callback(client, handler.Context, params)
}
