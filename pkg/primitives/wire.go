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
	"encoding/binary"
	"math"

	"github.com/donaldww/asylo/pkg/status"
)

// The encoded form of a ParameterStack is a 4-byte frame count followed by
// the frames from bottom to top, each as a 4-byte length prefix and the
// frame's bytes. Lengths are little-endian; there is no type metadata. Both
// ends run on the same CPU, so no further representation conversion happens
// at this layer.

// wireOrder is the byte order of the length prefixes.
var wireOrder = binary.LittleEndian

// lenPrefixBytes is the size of the frame count and of each length prefix.
const lenPrefixBytes = 4

// EncodedSize returns the number of bytes Encode would produce.
func (s *ParameterStack) EncodedSize() int {
	size := lenPrefixBytes
	for _, frame := range s.frames {
		size += lenPrefixBytes + len(frame)
	}
	return size
}

// Encode returns the stack in its wire form.
func (s *ParameterStack) Encode() ([]byte, error) {
	b := make([]byte, s.EncodedSize())
	if _, err := s.EncodeTo(b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeTo writes the stack in its wire form into b and returns the number of
// bytes written. It fails with OutOfRange if b is too small and with
// InvalidArgument if any frame exceeds the wire format's frame size limit.
func (s *ParameterStack) EncodeTo(b []byte) (int, error) {
	if len(s.frames) > math.MaxUint32 {
		return 0, status.Newf(status.InvalidArgument, "%d frames exceed the wire format limit", len(s.frames))
	}
	need := s.EncodedSize()
	if len(b) < need {
		return 0, status.Newf(status.OutOfRange, "encoded stack needs %d bytes, buffer holds %d", need, len(b))
	}
	wireOrder.PutUint32(b, uint32(len(s.frames)))
	off := lenPrefixBytes
	for _, frame := range s.frames {
		if int64(len(frame)) > math.MaxUint32 {
			return 0, status.Newf(status.InvalidArgument, "frame of %d bytes exceeds the wire format limit", len(frame))
		}
		wireOrder.PutUint32(b[off:], uint32(len(frame)))
		off += lenPrefixBytes
		off += copy(b[off:], frame)
	}
	return off, nil
}

// Decode replaces the stack's contents with the frames encoded in b. It fails
// with InvalidArgument if b is not a well-formed encoded stack; on failure
// the stack is left empty rather than partially decoded.
func (s *ParameterStack) Decode(b []byte) error {
	s.Reset()
	if len(b) < lenPrefixBytes {
		return status.Newf(status.InvalidArgument, "encoded stack truncated: %d bytes", len(b))
	}
	count := wireOrder.Uint32(b)
	off := lenPrefixBytes
	// Each frame needs at least its length prefix, so the count bounds the
	// allocation. The count is attacker-controlled; never allocate from it
	// before checking it against the buffer.
	if uint64(count)*lenPrefixBytes > uint64(len(b)-off) {
		return status.Newf(status.InvalidArgument, "encoded stack claims %d frames, buffer holds %d bytes", count, len(b))
	}
	frames := make([]Frame, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b)-off < lenPrefixBytes {
			return status.Newf(status.InvalidArgument, "encoded stack truncated in frame %d length", i)
		}
		frameLen := int(wireOrder.Uint32(b[off:]))
		off += lenPrefixBytes
		if len(b)-off < frameLen {
			return status.Newf(status.InvalidArgument, "encoded stack truncated in frame %d: need %d bytes, have %d", i, frameLen, len(b)-off)
		}
		frame := make(Frame, frameLen)
		copy(frame, b[off:off+frameLen])
		off += frameLen
		frames = append(frames, frame)
	}
	s.frames = frames
	return nil
}
