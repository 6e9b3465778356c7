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
	"github.com/donaldww/asylo/pkg/status"
)

// ErrEmptyStack is returned by Pop on an empty stack. Popping more frames
// than the caller pushed is a protocol violation, usually indicating a
// selector contract mismatch between the two sides, and must not be retried.
var ErrEmptyStack = status.New(status.FailedPrecondition, "parameter stack is empty")

// A Frame is one owned, variable-length byte buffer on a ParameterStack.
// Frames are immutable once pushed.
type Frame []byte

// Size returns the length of the frame in bytes.
func (f Frame) Size() int {
	return len(f)
}

// A ParameterStack is an ordered LIFO sequence of byte frames, used to pass
// arguments and results across the enclave boundary. Frames carry no type
// tag: the caller and the handler bound to a selector must agree on the
// sequence of types pushed and popped as part of that selector's contract.
//
// Every frame is copied at push time. The trusted and untrusted sides occupy
// mutually-distrusting address spaces with different validity lifetimes, so a
// frame that merely referenced its source buffer could dangle or be forged;
// copying the argument list at each crossing is the discipline that stays
// correct under that threat model.
//
// A ParameterStack is created per call and is not safe for concurrent use.
// The zero value is an empty stack ready for use.
type ParameterStack struct {
	frames []Frame
}

// Size returns the number of frames currently on the stack.
func (s *ParameterStack) Size() int {
	return len(s.frames)
}

// PushBytes copies the given bytes into a new frame on the top of the stack.
func (s *ParameterStack) PushBytes(b []byte) {
	frame := make(Frame, len(b))
	copy(frame, b)
	s.frames = append(s.frames, frame)
}

// PushString copies the given string into a new frame on the top of the
// stack, without a terminating NUL.
func (s *ParameterStack) PushString(str string) {
	s.PushBytes([]byte(str))
}

// Pop removes and returns the top frame. It fails with ErrEmptyStack if the
// stack is empty.
func (s *ParameterStack) Pop() (Frame, error) {
	n := len(s.frames)
	if n == 0 {
		return nil, ErrEmptyStack
	}
	frame := s.frames[n-1]
	s.frames[n-1] = nil
	s.frames = s.frames[:n-1]
	return frame, nil
}

// PopString pops the top frame and returns its contents as a string.
func (s *ParameterStack) PopString() (string, error) {
	frame, err := s.Pop()
	if err != nil {
		return "", err
	}
	return string(frame), nil
}

// Reset discards all frames.
func (s *ParameterStack) Reset() {
	s.frames = nil
}

// CheckArgumentCount fails with InvalidArgument unless the stack holds
// exactly n frames. Handlers call this before popping their arguments so that
// a caller/handler contract mismatch fails fast instead of corrupting the
// stack.
func CheckArgumentCount(s *ParameterStack, n int) error {
	if got := s.Size(); got != n {
		return status.Newf(status.InvalidArgument, "expected %d parameters on the stack, got %d", n, got)
	}
	return nil
}
