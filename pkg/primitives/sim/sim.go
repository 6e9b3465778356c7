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

// Package sim implements a simulation backend for the primitives layer.
//
// The simulated enclave runs in the host process, but the boundary discipline
// is the real one: enclave memory is a distinct memfd-backed mapping, every
// parameter stack is copied through it in its wire form on the way in and out,
// and both sides validate which side of the boundary a buffer falls on before
// touching it. What the backend elides is only the hardware transition
// itself.
package sim

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/donaldww/asylo/pkg/boundary"
	"github.com/donaldww/asylo/pkg/log"
	"github.com/donaldww/asylo/pkg/primitives"
	"github.com/donaldww/asylo/pkg/primitives/trusted"
	"github.com/donaldww/asylo/pkg/primitives/untrusted"
	"github.com/donaldww/asylo/pkg/status"
)

// DefaultWindowSize is the default size of the simulated enclave's memory.
const DefaultWindowSize = 1 << 20

// DefaultThreadSlots is the default number of thread-context slots, bounding
// how many host threads may be inside the enclave at once.
const DefaultThreadSlots = 4

// Options configures a simulated enclave instance.
type Options struct {
	// WindowSize is the total size of the enclave memory mapping in bytes.
	// Zero selects DefaultWindowSize.
	WindowSize int

	// ThreadSlots bounds concurrent enclave entries. A call arriving while
	// every slot is busy fails with ResourceExhausted; the caller may retry
	// after backoff. Zero selects DefaultThreadSlots.
	ThreadSlots int
}

// A Loader loads a simulated enclave. It implements untrusted.Loader.
type Loader struct {
	// Enclave is the trusted application to host.
	Enclave trusted.Enclave

	// Options configures the instance.
	Options Options
}

// fixedPages is the number of pages carved out of the window for the
// data/bss/heap/thread/stack and runtime-reserved sections; the remainder
// becomes the per-slot message arena inside the runtime-reserved heap.
const fixedPages = 8

// Load maps the enclave window, builds the memory layout and trusted
// runtime, and returns the connection. The init entry point is invoked by
// untrusted.Load, not here.
func (l Loader) Load(client *untrusted.Client) (untrusted.Connection, error) {
	if l.Enclave == nil {
		return nil, status.New(status.InvalidArgument, "no enclave to load")
	}
	slots := l.Options.ThreadSlots
	if slots == 0 {
		slots = DefaultThreadSlots
	}
	size := l.Options.WindowSize
	if size == 0 {
		size = DefaultWindowSize
	}
	if min := (fixedPages + slots) * pageSize; size < min {
		return nil, status.Newf(status.InvalidArgument, "window of %d bytes cannot hold %d thread slots (need %d)", size, slots, min)
	}
	w, err := newWindow(size)
	if err != nil {
		return nil, status.Newf(status.Internal, "failed to map enclave window: %v", err)
	}

	conn := &connection{
		client:  client,
		window:  w,
		slots:   semaphore.NewWeighted(int64(slots)),
		chunks:  make(chan []byte, slots),
		entries: make(chan struct{}, slots),
	}

	// Carve the window into the enclave's sections. The layout mirrors what
	// a hardware backend reports after measuring the image; here the
	// interesting property is only that the ranges are real mapped memory.
	base := w.mapping
	page := func(n, count int) boundary.Region {
		e := primitives.ExtentOf(base[n*pageSize : (n+count)*pageSize])
		return boundary.Region{Base: e.Data, Size: e.Size}
	}
	stack := primitives.ExtentOf(base[5*pageSize : 6*pageSize])
	arena := base[fixedPages*pageSize:]
	arenaExtent := primitives.ExtentOf(arena)
	layout := boundary.Layout{
		Data:         page(0, 1),
		Bss:          page(1, 1),
		Heap:         page(2, 2),
		Thread:       page(4, 1),
		StackBase:    stack.Data + boundary.Addr(stack.Size),
		StackLimit:   stack.Data,
		ReservedData: page(6, 1),
		ReservedBss:  page(7, 1),
		ReservedHeap: boundary.Region{Base: arenaExtent.Data, Size: arenaExtent.Size},
	}

	// Split the arena into per-slot message chunks so concurrent entries do
	// not contend for transfer space.
	chunkSize := (len(arena) / slots) &^ pageMask
	for i := 0; i < slots; i++ {
		conn.chunks <- arena[i*chunkSize : (i+1)*chunkSize]
	}

	rt, err := trusted.NewRuntime(l.Enclave, layout, conn)
	if err != nil {
		w.destroy()
		return nil, err
	}
	conn.runtime = rt
	log.Debugf("sim backend mapped %d byte enclave window with %d thread slots", len(base), slots)
	return conn, nil
}

// A connection is the untrusted side's handle to one simulated enclave. It
// doubles as the trusted runtime's exit-call dispatcher, since the simulated
// boundary crossing is an in-process function call in either direction.
type connection struct {
	client  *untrusted.Client
	window  *window
	runtime *trusted.Runtime

	// slots bounds concurrent entries; chunks hands out the matching
	// message arena chunk. Both hold exactly ThreadSlots permits.
	slots  *semaphore.Weighted
	chunks chan []byte

	// entries tracks in-flight calls so Destroy can drain them.
	entries chan struct{}

	destroyed atomic.Bool
}

var _ untrusted.Connection = (*connection)(nil)
var _ trusted.ExitCallDispatcher = (*connection)(nil)

// EnclaveCall implements untrusted.Connection.EnclaveCall: it performs the
// simulated enter-enclave transition with the given selector and parameter
// stack.
func (c *connection) EnclaveCall(selector primitives.Selector, params *primitives.ParameterStack) error {
	if c.destroyed.Load() {
		return status.New(status.FailedPrecondition, "enclave is destroyed")
	}
	if !c.slots.TryAcquire(1) {
		return status.New(status.ResourceExhausted, "no free enclave thread slots")
	}
	defer c.slots.Release(1)
	chunk := <-c.chunks
	defer func() { c.chunks <- chunk }()
	// entries can only be full if Destroy is draining the connection; do not
	// enter a window that is about to be unmapped.
	select {
	case c.entries <- struct{}{}:
	default:
		return status.New(status.FailedPrecondition, "enclave is destroyed")
	}
	defer func() { <-c.entries }()

	// Copy the encoded stack into enclave memory.
	n, err := params.EncodeTo(chunk)
	if status.Is(err, status.OutOfRange) {
		return status.Newf(status.ResourceExhausted, "parameter stack exceeds the %d byte transfer chunk", len(chunk))
	} else if err != nil {
		return err
	}

	resp, err := c.enclaveEnter(selector, primitives.ExtentOf(chunk[:n]), chunk)
	if err != nil {
		return err
	}
	// Copy the response back out of enclave memory.
	return params.Decode(primitives.ExtentBytes(resp))
}

// enclaveEnter is the trusted side of the transition: everything from here
// until it returns runs "inside" the enclave.
func (c *connection) enclaveEnter(selector primitives.Selector, req primitives.Extent, chunk []byte) (primitives.Extent, error) {
	// A request buffer aliasing memory outside the enclave could be remapped
	// by a hostile host while the enclave reads it. Refuse, never clamp.
	if !c.runtime.IsWithinEnclave(req) {
		return primitives.Extent{}, status.Newf(status.PermissionDenied, "rejecting entry: %v is not enclave memory", req)
	}
	var stack primitives.ParameterStack
	if err := stack.Decode(primitives.ExtentBytes(req)); err != nil {
		return primitives.Extent{}, err
	}
	if err := c.runtime.EnclaveEntry(selector, &stack); err != nil {
		return primitives.Extent{}, err
	}
	n, err := stack.EncodeTo(chunk)
	if status.Is(err, status.OutOfRange) {
		return primitives.Extent{}, status.Newf(status.ResourceExhausted, "result stack exceeds the %d byte transfer chunk", len(chunk))
	} else if err != nil {
		return primitives.Extent{}, err
	}
	return primitives.ExtentOf(chunk[:n]), nil
}

// DispatchExitCall implements trusted.ExitCallDispatcher.DispatchExitCall:
// it carries a call made by enclave code out to the untrusted registry, on
// the host thread that is blocked inside EnclaveCall.
func (c *connection) DispatchExitCall(selector primitives.Selector, params *primitives.ParameterStack) error {
	// Copy the encoded stack out into host memory. The trusted side checks
	// the destination really is host memory before writing enclave data
	// through it.
	buf, err := params.Encode()
	if err != nil {
		return err
	}
	if !c.runtime.IsOutsideEnclave(primitives.ExtentOf(buf)) {
		return status.Newf(status.PermissionDenied, "rejecting exit call: transfer buffer aliases enclave memory")
	}

	var hostStack primitives.ParameterStack
	if err := hostStack.Decode(buf); err != nil {
		return err
	}
	if err := c.client.InvokeExitCall(selector, &hostStack); err != nil {
		return err
	}

	resp, err := hostStack.Encode()
	if err != nil {
		return err
	}
	// Copy the results back into trusted-owned frames.
	return params.Decode(resp)
}

// Destroy implements untrusted.Connection.Destroy. In-flight calls hold
// references into the window, so it waits for them to drain before unmapping.
func (c *connection) Destroy() error {
	if c.destroyed.Swap(true) {
		return status.New(status.FailedPrecondition, "enclave is destroyed")
	}
	for i := 0; i < cap(c.entries); i++ {
		c.entries <- struct{}{}
	}
	c.window.destroy()
	return nil
}
