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

// Package trusted implements the trusted side of the primitives layer: the
// per-enclave runtime that owns the entry-handler registry, the init/fini
// lifecycle, and the exit-call path back to the host.
//
// Backends call into a Runtime when the host enters the enclave; enclave code
// calls out of it with UntrustedCall. One Runtime exists per loaded enclave
// instance and lives for the instance's lifetime.
package trusted

import (
	"sync/atomic"

	"github.com/donaldww/asylo/pkg/boundary"
	"github.com/donaldww/asylo/pkg/log"
	"github.com/donaldww/asylo/pkg/primitives"
	"github.com/donaldww/asylo/pkg/status"
	"github.com/donaldww/asylo/pkg/sync"
)

// An EntryCallback services one call into the enclave. It pops its arguments
// off params in the reverse of the order the caller pushed them, and pushes
// its results before returning. context is the opaque pointer supplied at
// registration.
type EntryCallback func(context any, params *primitives.ParameterStack) error

// An EntryHandler binds an EntryCallback to the context it will be invoked
// with.
type EntryHandler struct {
	Callback EntryCallback
	Context  any
}

// An Enclave is the application code hosted by a Runtime. Init is invoked
// exactly once per instance, before any other call is dispatched; it must
// register every entry handler the enclave will service. Fini is invoked
// exactly once at teardown.
type Enclave interface {
	Init(rt *Runtime) error
	Fini(rt *Runtime) error
}

// An ExitCallDispatcher forwards a call made by enclave code to the untrusted
// side's exit-handler registry. It is wired by the backend at load time.
type ExitCallDispatcher interface {
	DispatchExitCall(selector primitives.Selector, params *primitives.ParameterStack) error
}

// Runtime lifecycle states.
const (
	stateCreated uint32 = iota
	stateInitializing
	stateInitialized
	stateFinalizing
	stateFinalized
)

// A Runtime is the trusted side of one loaded enclave instance.
type Runtime struct {
	enclave   Enclave
	layout    boundary.Layout
	validator *boundary.Validator
	exit      ExitCallDispatcher

	// mu guards handlers and lifecycle transitions. Registration happens
	// only while servicing Init, which the backend invokes exactly once
	// before any concurrent call, so dispatch takes only the read side.
	mu       sync.RWMutex
	handlers map[primitives.Selector]EntryHandler
	state    uint32

	// blockedEntries is non-zero while host entries are refused.
	blockedEntries atomic.Uint32

	// activeEntries counts calls currently executing inside the enclave.
	activeEntries atomic.Int64

	// aborted is set by BestEffortAbort and never cleared.
	aborted atomic.Bool
}

// NewRuntime returns a Runtime hosting the given enclave. The layout
// describes the enclave memory the backend mapped for this instance; the
// dispatcher carries exit calls to the untrusted side. The enclave's Init is
// not invoked until the host makes the init entry.
func NewRuntime(enclave Enclave, layout boundary.Layout, exit ExitCallDispatcher) (*Runtime, error) {
	validator, err := boundary.NewValidator(layout)
	if err != nil {
		return nil, status.Newf(status.InvalidArgument, "invalid enclave memory layout: %v", err)
	}
	return &Runtime{
		enclave:   enclave,
		layout:    layout,
		validator: validator,
		exit:      exit,
		handlers:  make(map[primitives.Selector]EntryHandler),
	}, nil
}

// RegisterEntryHandler binds handler to a selector in the user range. It
// fails with InvalidArgument for selectors reserved by the runtime or the
// host-call subsystem, and with AlreadyExists if the selector is bound.
func (r *Runtime) RegisterEntryHandler(selector primitives.Selector, handler EntryHandler) error {
	if selector < primitives.SelectorHostCall {
		return status.Newf(status.InvalidArgument, "selector %d is reserved for the runtime", selector)
	}
	if selector < primitives.SelectorUser {
		return status.Newf(status.InvalidArgument, "selector %d is reserved for the host-call subsystem", selector)
	}
	return r.register(selector, handler)
}

// RegisterHostCallHandler binds handler to a selector in the host-call
// reserved range [SelectorHostCall, SelectorUser). Only the host-call
// subsystem may use this range.
func (r *Runtime) RegisterHostCallHandler(selector primitives.Selector, handler EntryHandler) error {
	if selector < primitives.SelectorHostCall || selector >= primitives.SelectorUser {
		return status.Newf(status.InvalidArgument, "selector %d is outside the host-call range [%d, %d)",
			selector, primitives.SelectorHostCall, primitives.SelectorUser)
	}
	return r.register(selector, handler)
}

// RegisterRunHandler binds handler to the run entry point.
func (r *Runtime) RegisterRunHandler(handler EntryHandler) error {
	return r.register(primitives.SelectorRun, handler)
}

func (r *Runtime) register(selector primitives.Selector, handler EntryHandler) error {
	if selector == primitives.SelectorInvalid {
		return status.New(status.InvalidArgument, "the invalid selector is not registrable")
	}
	if handler.Callback == nil {
		return status.Newf(status.InvalidArgument, "nil callback for selector %d", selector)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[selector]; ok {
		return status.Newf(status.AlreadyExists, "selector %d is already bound", selector)
	}
	r.handlers[selector] = handler
	return nil
}

// EnclaveEntry services one call into the enclave. Backends invoke it after
// transferring the parameter stack into enclave memory.
func (r *Runtime) EnclaveEntry(selector primitives.Selector, params *primitives.ParameterStack) error {
	if r.aborted.Load() {
		return status.New(status.Aborted, "enclave has aborted")
	}
	if r.blockedEntries.Load() != 0 {
		return status.New(status.Unavailable, "enclave entries are blocked")
	}
	r.activeEntries.Add(1)
	defer r.activeEntries.Add(-1)

	switch selector {
	case primitives.SelectorInvalid:
		return status.New(status.InvalidArgument, "the invalid selector is not dispatchable")
	case primitives.SelectorInit:
		return r.initialize()
	case primitives.SelectorFini:
		return r.finalize()
	case primitives.SelectorDonateThread:
		// A donated thread has no work of its own at this layer; it
		// returns to the backend, which parks it in the thread pool.
		return nil
	}

	r.mu.RLock()
	if r.state != stateInitialized {
		r.mu.RUnlock()
		return status.Newf(status.FailedPrecondition, "selector %d dispatched before enclave initialization", selector)
	}
	handler, ok := r.handlers[selector]
	r.mu.RUnlock()
	if !ok {
		return status.Newf(status.NotFound, "no entry handler registered for selector %d", selector)
	}
	return handler.Callback(handler.Context, params)
}

// initialize invokes the enclave's Init outside the registry lock: Init is
// where the enclave registers its entry handlers.
func (r *Runtime) initialize() error {
	if err := r.transition(stateCreated, stateInitializing, "enclave is already initialized"); err != nil {
		return err
	}
	if err := r.enclave.Init(r); err != nil {
		r.setState(stateCreated)
		return err
	}
	r.setState(stateInitialized)
	return nil
}

func (r *Runtime) finalize() error {
	if err := r.transition(stateInitialized, stateFinalizing, "enclave is not initialized"); err != nil {
		return err
	}
	err := r.enclave.Fini(r)
	r.setState(stateFinalized)
	return err
}

// transition moves the lifecycle from one state to the next, failing with
// FailedPrecondition if the runtime is not in the expected state.
func (r *Runtime) transition(from, to uint32, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return status.New(status.FailedPrecondition, msg)
	}
	r.state = to
	return nil
}

func (r *Runtime) setState(s uint32) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// UntrustedCall invokes the exit handler bound to selector on the untrusted
// side, blocking the calling thread until the handler returns. The stack's
// contents are copied out of and back into enclave memory by the backend.
func (r *Runtime) UntrustedCall(selector primitives.Selector, params *primitives.ParameterStack) error {
	if r.aborted.Load() {
		return status.New(status.Aborted, "enclave has aborted")
	}
	if r.exit == nil {
		return status.New(status.FailedPrecondition, "no exit call dispatcher is wired")
	}
	return r.exit.DispatchExitCall(selector, params)
}

// BlockEntries refuses new host entries until UnblockEntries is called.
// Entries already executing are unaffected.
func (r *Runtime) BlockEntries() {
	r.blockedEntries.Add(1)
}

// UnblockEntries undoes one BlockEntries call.
func (r *Runtime) UnblockEntries() {
	r.blockedEntries.Add(^uint32(0))
}

// ActiveEntries returns the number of calls currently executing inside the
// enclave.
func (r *Runtime) ActiveEntries() int64 {
	return r.activeEntries.Load()
}

// BestEffortAbort abandons the enclave: further entries and exit calls fail
// with Aborted, and the owning client is expected to transition to its closed
// state when it observes the status. Calls already executing are not
// interrupted.
func (r *Runtime) BestEffortAbort(reason string) {
	if r.aborted.Swap(true) {
		return
	}
	log.Warningf("enclave aborting: %s", reason)
}

// MemoryLayout returns the enclave's memory layout descriptor.
func (r *Runtime) MemoryLayout() boundary.Layout {
	return r.layout
}

// IsWithinEnclave returns true iff the extent lies entirely within this
// enclave's mapped memory.
func (r *Runtime) IsWithinEnclave(e primitives.Extent) bool {
	return r.validator.WithinEnclave(e.Data, e.Size)
}

// IsOutsideEnclave returns true iff the extent lies entirely in host memory.
func (r *Runtime) IsOutsideEnclave(e primitives.Extent) bool {
	return r.validator.OutsideEnclave(e.Data, e.Size)
}
