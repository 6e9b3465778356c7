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

package examples

import (
	"testing"

	"github.com/donaldww/asylo/pkg/primitives"
	"github.com/donaldww/asylo/pkg/primitives/sim"
	"github.com/donaldww/asylo/pkg/primitives/untrusted"
	"github.com/donaldww/asylo/pkg/status"
)

func loadHello(t *testing.T) *untrusted.Client {
	t.Helper()
	exits := untrusted.NewDispatchTable()
	if err := exits.RegisterExitHandler(HelloExitSelector, untrusted.ExitHandler{
		Callback: func(client *untrusted.Client, context any, params *primitives.ParameterStack) error {
			if err := primitives.CheckArgumentCount(params, 0); err != nil {
				return err
			}
			params.PushString("Hello")
			return nil
		},
	}); err != nil {
		t.Fatalf("RegisterExitHandler(HelloExitSelector) failed: %v", err)
	}
	client, err := untrusted.Load("hello", sim.Loader{Enclave: HelloEnclave{}}, exits)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	t.Cleanup(func() { client.Destroy() })
	return client
}

func TestHelloRoundTrip(t *testing.T) {
	client := loadHello(t)
	var params primitives.ParameterStack
	if err := client.EnclaveCall(HelloSelector, &params); err != nil {
		t.Fatalf("EnclaveCall(HelloSelector) failed: %v", err)
	}
	got, err := params.PopString()
	if err != nil {
		t.Fatalf("PopString failed: %v", err)
	}
	if want := "Hello from the enclave!"; got != want {
		t.Errorf("greeting = %q, want %q", got, want)
	}
	if params.Size() != 0 {
		t.Errorf("stack has %d leftover frames", params.Size())
	}
}

func TestIncrement(t *testing.T) {
	client := loadHello(t)
	var params primitives.ParameterStack
	primitives.Push(&params, int64(122))
	if err := client.EnclaveCall(IncrementSelector, &params); err != nil {
		t.Fatalf("EnclaveCall(IncrementSelector) failed: %v", err)
	}
	got, err := primitives.Pop[int64](&params)
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	if got != 123 {
		t.Errorf("increment returned %d, want 123", got)
	}
}

func TestHelloWithoutHostHandler(t *testing.T) {
	client, err := untrusted.Load("hello", sim.Loader{Enclave: HelloEnclave{}}, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer client.Destroy()
	var params primitives.ParameterStack
	err = client.EnclaveCall(HelloSelector, &params)
	if !status.Is(err, status.NotFound) {
		t.Errorf("EnclaveCall without a host greeter returned %v, want NotFound", err)
	}
}

func TestIncrementArgumentCount(t *testing.T) {
	client := loadHello(t)
	var params primitives.ParameterStack
	err := client.EnclaveCall(IncrementSelector, &params)
	if !status.Is(err, status.InvalidArgument) {
		t.Errorf("EnclaveCall with no arguments returned %v, want InvalidArgument", err)
	}
}
