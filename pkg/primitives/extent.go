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
	"fmt"

	"github.com/donaldww/asylo/pkg/boundary"
)

// An Extent is a non-owning view of a contiguous byte range. It is the basic
// unit of data crossing the enclave boundary.
//
// An Extent is valid only as long as the buffer it describes is alive and,
// if the buffer lies inside an enclave, only while that enclave instance
// exists. The receiving side must validate which side of the boundary an
// Extent falls on before dereferencing it; see boundary.Validator.
type Extent struct {
	// Data is the address of the first byte of the extent.
	Data boundary.Addr

	// Size is the length of the extent in bytes.
	Size uint64
}

// String implements fmt.Stringer.String.
func (e Extent) String() string {
	return fmt.Sprintf("extent(%#x, %d bytes)", uintptr(e.Data), e.Size)
}

// IsEmpty returns true if the extent describes no bytes.
func (e Extent) IsEmpty() bool {
	return e.Size == 0
}

// Range returns the extent as an address range. ok is false if the extent
// wraps the address space.
func (e Extent) Range() (boundary.AddrRange, bool) {
	return e.Data.ToRange(e.Size)
}
