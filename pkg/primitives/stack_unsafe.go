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
	"unsafe"

	"github.com/donaldww/asylo/pkg/boundary"
	"github.com/donaldww/asylo/pkg/status"
)

// Typed push/pop helpers. Values are copied verbatim with no endianness
// conversion: both sides of the boundary execute on the same physical CPU and
// are assumed to share data representation. T must be trivially copyable --
// it must not contain pointers, slices, strings, or maps, since only the
// immediate bytes of the value cross the boundary.

// Push copies the bytes of value into a new frame on the top of the stack.
func Push[T any](s *ParameterStack, value T) {
	s.PushBytes(unsafe.Slice((*byte)(unsafe.Pointer(&value)), unsafe.Sizeof(value)))
}

// PushSlice copies the bytes of all elements of values into a single new
// frame on the top of the stack.
func PushSlice[T any](s *ParameterStack, values []T) {
	if len(values) == 0 {
		s.PushBytes(nil)
		return
	}
	size := uintptr(len(values)) * unsafe.Sizeof(values[0])
	s.PushBytes(unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), size))
}

// Pop removes the top frame and returns its bytes reinterpreted as a T. It
// fails with ErrEmptyStack if the stack is empty and with InvalidArgument if
// the frame's size does not equal the size of T; a size mismatch indicates a
// selector contract violation.
func Pop[T any](s *ParameterStack) (T, error) {
	var value T
	frame, err := s.Pop()
	if err != nil {
		return value, err
	}
	return FrameAs[T](frame)
}

// FrameAs reinterprets the frame's bytes as a value of type T. The frame must
// have been pushed with a layout-compatible type; only the size is checked.
func FrameAs[T any](f Frame) (T, error) {
	var value T
	if uintptr(f.Size()) != unsafe.Sizeof(value) {
		return value, status.Newf(status.InvalidArgument, "frame holds %d bytes, want %d", f.Size(), unsafe.Sizeof(value))
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&value)), unsafe.Sizeof(value)), f)
	return value, nil
}

// FrameSlice reinterprets the frame's bytes as a slice of T. The frame's size
// must be a multiple of the size of T.
func FrameSlice[T any](f Frame) ([]T, error) {
	var elem T
	elemSize := unsafe.Sizeof(elem)
	if elemSize == 0 || uintptr(f.Size())%elemSize != 0 {
		return nil, status.Newf(status.InvalidArgument, "frame holds %d bytes, not a multiple of element size %d", f.Size(), elemSize)
	}
	n := uintptr(f.Size()) / elemSize
	values := make([]T, n)
	if n > 0 {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), uintptr(f.Size())), f)
	}
	return values, nil
}

// ExtentOf returns an Extent describing the given byte slice. The extent is
// valid only as long as the slice's backing array is reachable.
func ExtentOf(b []byte) Extent {
	if len(b) == 0 {
		return Extent{}
	}
	return Extent{
		Data: boundary.Addr(uintptr(unsafe.Pointer(&b[0]))),
		Size: uint64(len(b)),
	}
}

// ExtentBytes returns the bytes described by the extent as a slice. The
// caller asserts that the extent describes mapped memory it is permitted to
// read; boundary validation must happen before this call.
func ExtentBytes(e Extent) []byte {
	if e.IsEmpty() {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(e.Data))), e.Size)
}
