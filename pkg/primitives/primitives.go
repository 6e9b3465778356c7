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

// Package primitives implements the calling convention shared by the trusted
// and untrusted sides of the enclave boundary: the entry-point selector
// namespace, the non-owning Extent view, and the LIFO parameter stack used to
// pass typed, variable-length arguments and results across the boundary.
//
// Types and constants declared here are used by both sides but are not
// themselves passed across the boundary; the only thing on the wire is the
// encoded form of a ParameterStack.
package primitives

// A Selector identifies the entry or exit handler a boundary crossing should
// dispatch to.
type Selector = uint64

// Entry point selectors reserved by the runtime. Selector values less than
// SelectorUser may not be registered by applications.
const (
	// SelectorInvalid is the invalid entry point selector. It is never
	// dispatchable and registering it always fails.
	SelectorInvalid Selector = 0

	// SelectorInit is the enclave initialization entry point selector.
	SelectorInit Selector = 1

	// SelectorRun is the enclave run entry point selector.
	SelectorRun Selector = 2

	// SelectorDonateThread is the enclave enter-and-donate-thread entry
	// point selector.
	SelectorDonateThread Selector = 3

	// SelectorFini is the enclave finalization entry point selector.
	SelectorFini Selector = 4

	// SelectorHostCall is the start of the range reserved for untrusted
	// host call handlers. Values in [SelectorHostCall, SelectorUser) cannot
	// be used by any other component.
	SelectorHostCall Selector = 112

	// SelectorUser is the start of the range available to applications.
	SelectorUser Selector = 128
)
