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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddLengthOverflow(t *testing.T) {
	if _, ok := Addr(^uintptr(0) - 10).AddLength(100); ok {
		t.Error("AddLength succeeded unexpectedly on address space wrap")
	}
}

// testLayout carves [0x10000, 0x18000) into abutting data/bss/heap regions,
// with a disjoint thread region at 0x20000 and a stack at 0x30000.
func testLayout() Layout {
	return Layout{
		Data:       Region{Base: 0x10000, Size: 0x2000},
		Bss:        Region{Base: 0x12000, Size: 0x2000},
		Heap:       Region{Base: 0x14000, Size: 0x4000},
		Thread:     Region{Base: 0x20000, Size: 0x1000},
		StackBase:  0x31000,
		StackLimit: 0x30000,
	}
}

func TestValidatorCoalescesRegions(t *testing.T) {
	v, err := NewValidator(testLayout())
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}
	want := []AddrRange{
		{0x10000, 0x18000},
		{0x20000, 0x21000},
		{0x30000, 0x31000},
	}
	if diff := cmp.Diff(want, v.spans); diff != "" {
		t.Errorf("coalesced spans mismatch (-want +got):\n%s", diff)
	}
}

func TestBoundaryDisjointness(t *testing.T) {
	v, err := NewValidator(testLayout())
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}
	for _, test := range []struct {
		name        string
		addr        Addr
		size        uint64
		wantWithin  bool
		wantOutside bool
	}{
		{name: "inside one region", addr: 0x10100, size: 0x100, wantWithin: true, wantOutside: false},
		{name: "spans abutting regions", addr: 0x11000, size: 0x4000, wantWithin: true, wantOutside: false},
		{name: "whole coalesced span", addr: 0x10000, size: 0x8000, wantWithin: true, wantOutside: false},
		{name: "host memory below", addr: 0x1000, size: 0x1000, wantWithin: false, wantOutside: true},
		{name: "host memory between regions", addr: 0x19000, size: 0x1000, wantWithin: false, wantOutside: true},
		{name: "straddles lower boundary", addr: 0xF000, size: 0x2000, wantWithin: false, wantOutside: false},
		{name: "straddles upper boundary", addr: 0x17000, size: 0x2000, wantWithin: false, wantOutside: false},
		{name: "stack range", addr: 0x30000, size: 0x1000, wantWithin: true, wantOutside: false},
		{name: "empty range", addr: 0x10100, size: 0, wantWithin: true, wantOutside: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := v.WithinEnclave(test.addr, test.size); got != test.wantWithin {
				t.Errorf("WithinEnclave(%#x, %#x) = %t, want %t", test.addr, test.size, got, test.wantWithin)
			}
			if got := v.OutsideEnclave(test.addr, test.size); got != test.wantOutside {
				t.Errorf("OutsideEnclave(%#x, %#x) = %t, want %t", test.addr, test.size, got, test.wantOutside)
			}
		})
	}
}

func TestBadLayouts(t *testing.T) {
	if _, err := NewValidator(Layout{Heap: Region{Base: ^Addr(0) - 0x10, Size: 0x100}}); err == nil {
		t.Error("NewValidator accepted a wrapping region")
	}
	if _, err := NewValidator(Layout{StackBase: 0x1000, StackLimit: 0x2000}); err == nil {
		t.Error("NewValidator accepted an inverted stack")
	}
}
