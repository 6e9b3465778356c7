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

package sim

import (
	"fmt"
	"math/bits"
	"os"

	"golang.org/x/sys/unix"
)

var (
	pageSize = os.Getpagesize()
	pageMask = pageSize - 1
)

func init() {
	if bits.OnesCount(uint(pageSize)) != 1 {
		// This is depended on by roundUpToPage().
		panic(fmt.Sprintf("system page size (%d) is not a power of 2", pageSize))
	}
}

func roundUpToPage(x int) int {
	return (x + pageMask) &^ pageMask
}

// A window is the simulated enclave's memory: a range of pages in a
// memfd-backed mapping that plays the role the measured enclave image plays
// under a hardware backend. Its address range is what the boundary validator
// treats as "inside the enclave".
type window struct {
	fd      int
	mapping []byte
}

// newWindow creates a window of at least the given size in bytes.
func newWindow(size int) (*window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid window size: %d", size)
	}
	size = roundUpToPage(size)
	fd, err := unix.MemfdCreate("asylo_sim_enclave", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("failed to create memfd: %v", err)
	}
	// Apply F_SEAL_SHRINK to prevent anything sharing the fd from causing
	// SIGBUS by truncating the file, and F_SEAL_SEAL to prevent F_SEAL_GROW
	// or F_SEAL_WRITE from being applied later.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_SEAL); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to apply memfd seals: %v", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate failed: %v", err)
	}
	mapping, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to mmap enclave window: %v", err)
	}
	return &window{fd: fd, mapping: mapping}, nil
}

// destroy releases the mapping and the backing file. The window's address
// range is invalid afterward.
func (w *window) destroy() {
	if w.mapping != nil {
		unix.Munmap(w.mapping)
		w.mapping = nil
	}
	unix.Close(w.fd)
}
