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

package boundary

import (
	"fmt"
	"sort"
)

// A Region describes one contiguous block of enclave memory as a base address
// and a size in bytes.
type Region struct {
	Base Addr
	Size uint64
}

// Range returns the region as an address range. ok is false if the region
// wraps the address space.
func (r Region) Range() (AddrRange, bool) {
	return r.Base.ToRange(r.Size)
}

// Layout describes the memory layout of a loaded enclave. It is populated by
// the backend at load time and never mutated afterward.
//
// The stack region is described by its upper and lower bounds rather than a
// base and size because the stack grows down.
type Layout struct {
	// Data is the initialized data section.
	Data Region

	// Bss is the uninitialized data section.
	Bss Region

	// Heap is the enclave heap.
	Heap Region

	// Thread is the thread data for the current thread.
	Thread Region

	// StackBase is the upper bound of the stack for the current thread.
	StackBase Addr

	// StackLimit is the lower bound of the stack for the current thread.
	StackLimit Addr

	// ReservedData is the data storage reserved to the runtime.
	ReservedData Region

	// ReservedBss is the bss storage reserved to the runtime.
	ReservedBss Region

	// ReservedHeap is the heap storage reserved to the runtime.
	ReservedHeap Region
}

// regions returns all address ranges described by the layout, dropping empty
// ones.
func (l Layout) regions() ([]AddrRange, error) {
	rs := make([]AddrRange, 0, 8)
	for _, r := range []Region{l.Data, l.Bss, l.Heap, l.Thread, l.ReservedData, l.ReservedBss, l.ReservedHeap} {
		if r.Size == 0 {
			continue
		}
		ar, ok := r.Range()
		if !ok {
			return nil, fmt.Errorf("region %#x+%#x wraps the address space", uintptr(r.Base), r.Size)
		}
		rs = append(rs, ar)
	}
	if l.StackBase != l.StackLimit {
		stack := AddrRange{l.StackLimit, l.StackBase}
		if !stack.WellFormed() {
			return nil, fmt.Errorf("stack limit %#x is above stack base %#x", uintptr(l.StackLimit), uintptr(l.StackBase))
		}
		rs = append(rs, stack)
	}
	return rs, nil
}

// A Validator checks which side of the enclave boundary an address range
// falls on. It is constructed once at enclave load time from the enclave's
// memory layout and is immutable afterward, so it may be shared between
// threads without synchronization.
type Validator struct {
	// spans is the coalesced, sorted set of enclave address ranges.
	spans []AddrRange
}

// NewValidator returns a Validator for the given layout.
func NewValidator(l Layout) (*Validator, error) {
	rs, err := l.regions()
	if err != nil {
		return nil, err
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })

	// Coalesce abutting and overlapping regions so that a range spanning two
	// adjacent regions still validates as inside the enclave.
	var spans []AddrRange
	for _, r := range rs {
		if n := len(spans); n > 0 && r.Start <= spans[n-1].End {
			if r.End > spans[n-1].End {
				spans[n-1].End = r.End
			}
			continue
		}
		spans = append(spans, r)
	}
	return &Validator{spans: spans}, nil
}

// WithinEnclave returns true iff [addr, addr+size) lies entirely within the
// enclave's mapped regions. Empty ranges are vacuously within.
func (v *Validator) WithinEnclave(addr Addr, size uint64) bool {
	ar, ok := addr.ToRange(size)
	if !ok {
		return false
	}
	if ar.IsEmpty() {
		return true
	}
	for _, span := range v.spans {
		if span.IsSupersetOf(ar) {
			return true
		}
	}
	return false
}

// OutsideEnclave returns true iff [addr, addr+size) lies entirely outside the
// enclave's mapped regions. Empty ranges are vacuously outside.
func (v *Validator) OutsideEnclave(addr Addr, size uint64) bool {
	ar, ok := addr.ToRange(size)
	if !ok {
		return false
	}
	if ar.IsEmpty() {
		return true
	}
	for _, span := range v.spans {
		if span.Overlaps(ar) {
			return false
		}
	}
	return true
}
