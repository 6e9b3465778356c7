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

// Package examples provides small demonstration enclaves for the primitives
// layer. They are used by the demo driver and exercised by tests; production
// code has no reason to import this package.
package examples

import (
	"github.com/donaldww/asylo/pkg/primitives"
	"github.com/donaldww/asylo/pkg/primitives/trusted"
	"github.com/donaldww/asylo/pkg/status"
)

// Selectors serviced and called by the hello enclave.
const (
	// HelloSelector greets the caller. No arguments; pushes one string.
	HelloSelector = primitives.SelectorUser + 8

	// IncrementSelector pops one int64 and pushes it back incremented.
	IncrementSelector = primitives.SelectorUser + 9

	// HelloExitSelector is the exit call the hello enclave makes to fetch
	// the host's greeting. The host handler pushes one string.
	HelloExitSelector = primitives.SelectorUser + 1008
)

// HelloEnclave is a trivial enclave: asked to say hello, it fetches a
// greeting from the host through an exit call and hands back an answer built
// from it. It demonstrates a complete call-in/call-out round trip.
type HelloEnclave struct{}

// Init implements trusted.Enclave.Init.
func (HelloEnclave) Init(rt *trusted.Runtime) error {
	if err := rt.RegisterEntryHandler(HelloSelector, trusted.EntryHandler{
		Callback: func(context any, params *primitives.ParameterStack) error {
			if err := primitives.CheckArgumentCount(params, 0); err != nil {
				return err
			}
			if err := rt.UntrustedCall(HelloExitSelector, params); err != nil {
				return err
			}
			greeting, err := params.PopString()
			if err != nil {
				return err
			}
			if greeting == "" {
				return status.New(status.InvalidArgument, "host supplied an empty greeting")
			}
			params.PushString(greeting + " from the enclave!")
			return nil
		},
	}); err != nil {
		return err
	}
	return rt.RegisterEntryHandler(IncrementSelector, trusted.EntryHandler{
		Callback: func(context any, params *primitives.ParameterStack) error {
			if err := primitives.CheckArgumentCount(params, 1); err != nil {
				return err
			}
			value, err := primitives.Pop[int64](params)
			if err != nil {
				return err
			}
			primitives.Push(params, value+1)
			return nil
		},
	})
}

// Fini implements trusted.Enclave.Fini.
func (HelloEnclave) Fini(rt *trusted.Runtime) error {
	return nil
}
