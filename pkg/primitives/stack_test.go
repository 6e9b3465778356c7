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

package primitives

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/donaldww/asylo/pkg/status"
)

func TestStackLIFO(t *testing.T) {
	var s ParameterStack
	var pushed [][]byte
	for i := 0; i < 16; i++ {
		b := []byte(fmt.Sprintf("frame %d with %d padding bytes", i, i))
		pushed = append(pushed, b)
		s.PushBytes(b)
	}
	if got := s.Size(); got != len(pushed) {
		t.Fatalf("Size() = %d, want %d", got, len(pushed))
	}
	for i := len(pushed) - 1; i >= 0; i-- {
		frame, err := s.Pop()
		if err != nil {
			t.Fatalf("Pop() failed: %v", err)
		}
		if !bytes.Equal(frame, pushed[i]) {
			t.Errorf("Pop() = %q, want %q", frame, pushed[i])
		}
	}
	if got := s.Size(); got != 0 {
		t.Errorf("Size() after popping everything = %d, want 0", got)
	}
}

func TestPopEmptyStack(t *testing.T) {
	var s ParameterStack
	if _, err := s.Pop(); !status.Is(err, status.FailedPrecondition) {
		t.Errorf("Pop() on empty stack = %v, want FailedPrecondition", err)
	}
}

func TestTypedRoundTrip(t *testing.T) {
	type point struct {
		X, Y int32
		Tag  [8]byte
	}
	var s ParameterStack

	Push(&s, int32(41))
	Push(&s, uint64(0xdeadbeefcafe))
	Push(&s, point{X: -3, Y: 7, Tag: [8]byte{'a', 'b', 'c'}})

	gotPoint, err := Pop[point](&s)
	if err != nil {
		t.Fatalf("Pop[point]() failed: %v", err)
	}
	if diff := cmp.Diff(point{X: -3, Y: 7, Tag: [8]byte{'a', 'b', 'c'}}, gotPoint); diff != "" {
		t.Errorf("point mismatch (-want +got):\n%s", diff)
	}
	if got, err := Pop[uint64](&s); err != nil || got != 0xdeadbeefcafe {
		t.Errorf("Pop[uint64]() = (%#x, %v), want (0xdeadbeefcafe, nil)", got, err)
	}
	if got, err := Pop[int32](&s); err != nil || got != 41 {
		t.Errorf("Pop[int32]() = (%d, %v), want (41, nil)", got, err)
	}
}

func TestTypedSizeMismatch(t *testing.T) {
	var s ParameterStack
	Push(&s, int32(1))
	if _, err := Pop[int64](&s); !status.Is(err, status.InvalidArgument) {
		t.Errorf("Pop[int64]() of an int32 frame = %v, want InvalidArgument", err)
	}
}

func TestPushSlice(t *testing.T) {
	var s ParameterStack
	want := []uint16{1, 2, 0xffff}
	PushSlice(&s, want)
	frame, err := s.Pop()
	if err != nil {
		t.Fatalf("Pop() failed: %v", err)
	}
	got, err := FrameSlice[uint16](frame)
	if err != nil {
		t.Fatalf("FrameSlice[uint16]() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("slice mismatch (-want +got):\n%s", diff)
	}
	if _, err := FrameSlice[uint32](frame); !status.Is(err, status.InvalidArgument) {
		t.Errorf("FrameSlice[uint32]() of a 6-byte frame = %v, want InvalidArgument", err)
	}
}

func TestCheckArgumentCount(t *testing.T) {
	var s ParameterStack
	Push(&s, int32(1))
	Push(&s, int32(2))
	if err := CheckArgumentCount(&s, 2); err != nil {
		t.Errorf("CheckArgumentCount(s, 2) = %v, want nil", err)
	}
	if err := CheckArgumentCount(&s, 3); !status.Is(err, status.InvalidArgument) {
		t.Errorf("CheckArgumentCount(s, 3) = %v, want InvalidArgument", err)
	}
}

func TestWireRoundTrip(t *testing.T) {
	var s ParameterStack
	s.PushBytes(nil)
	s.PushString("Hello")
	Push(&s, uint32(42))

	b, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if want := s.EncodedSize(); len(b) != want {
		t.Errorf("len(Encode()) = %d, want EncodedSize() = %d", len(b), want)
	}

	var d ParameterStack
	if err := d.Decode(b); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if got, err := Pop[uint32](&d); err != nil || got != 42 {
		t.Errorf("Pop[uint32]() = (%d, %v), want (42, nil)", got, err)
	}
	if got, err := d.PopString(); err != nil || got != "Hello" {
		t.Errorf("PopString() = (%q, %v), want (\"Hello\", nil)", got, err)
	}
	frame, err := d.Pop()
	if err != nil {
		t.Fatalf("Pop() failed: %v", err)
	}
	if frame.Size() != 0 {
		t.Errorf("bottom frame size = %d, want 0", frame.Size())
	}
}

func TestDecodeTruncated(t *testing.T) {
	var s ParameterStack
	s.PushString("truncate me")
	b, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	for _, n := range []int{0, lenPrefixBytes - 1, lenPrefixBytes + 1, len(b) - 1} {
		var d ParameterStack
		if err := d.Decode(b[:n]); !status.Is(err, status.InvalidArgument) {
			t.Errorf("Decode(b[:%d]) = %v, want InvalidArgument", n, err)
		}
		if d.Size() != 0 {
			t.Errorf("Decode(b[:%d]) left %d frames on the stack, want 0", n, d.Size())
		}
	}
}

func TestDecodeOversizedFrameCount(t *testing.T) {
	// A frame count the buffer cannot possibly hold must be rejected before
	// anything is allocated from it.
	for _, b := range [][]byte{
		{0xff, 0xff, 0xff, 0xff},
		{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	} {
		var d ParameterStack
		if err := d.Decode(b); !status.Is(err, status.InvalidArgument) {
			t.Errorf("Decode(% x) = %v, want InvalidArgument", b, err)
		}
		if d.Size() != 0 {
			t.Errorf("Decode(% x) left %d frames on the stack, want 0", b, d.Size())
		}
	}
}

func TestEncodeToSmallBuffer(t *testing.T) {
	var s ParameterStack
	s.PushString("does not fit")
	if _, err := s.EncodeTo(make([]byte, 4)); !status.Is(err, status.OutOfRange) {
		t.Errorf("EncodeTo(small) = %v, want OutOfRange", err)
	}
}

func TestExtentOf(t *testing.T) {
	b := []byte("some host bytes")
	e := ExtentOf(b)
	if e.Size != uint64(len(b)) {
		t.Errorf("ExtentOf(b).Size = %d, want %d", e.Size, len(b))
	}
	if got := ExtentBytes(e); !bytes.Equal(got, b) {
		t.Errorf("ExtentBytes(ExtentOf(b)) = %q, want %q", got, b)
	}
	if !ExtentOf(nil).IsEmpty() {
		t.Error("ExtentOf(nil).IsEmpty() = false, want true")
	}
}
