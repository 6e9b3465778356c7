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

package untrusted

import (
	"testing"

	"github.com/donaldww/asylo/pkg/primitives"
	"github.com/donaldww/asylo/pkg/status"
)

// fakeConnection records the selectors entered and fails selected calls.
type fakeConnection struct {
	entered   []primitives.Selector
	destroyed int
	failWith  map[primitives.Selector]error
}

func (f *fakeConnection) EnclaveCall(selector primitives.Selector, params *primitives.ParameterStack) error {
	f.entered = append(f.entered, selector)
	if err, ok := f.failWith[selector]; ok {
		return err
	}
	return nil
}

func (f *fakeConnection) Destroy() error {
	f.destroyed++
	return nil
}

type fakeLoader struct {
	conn    *fakeConnection
	loadErr error
}

func (f *fakeLoader) Load(client *Client) (Connection, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.conn, nil
}

func TestLoadInvokesInit(t *testing.T) {
	conn := &fakeConnection{}
	client, err := Load("fake", &fakeLoader{conn: conn}, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(conn.entered) != 1 || conn.entered[0] != primitives.SelectorInit {
		t.Errorf("entered selectors = %v, want [SelectorInit]", conn.entered)
	}
	if client.IsClosed() {
		t.Error("IsClosed() = true on a freshly loaded client")
	}
}

func TestLoadFailedInitTearsDown(t *testing.T) {
	conn := &fakeConnection{failWith: map[primitives.Selector]error{
		primitives.SelectorInit: status.New(status.Internal, "init exploded"),
	}}
	if _, err := Load("fake", &fakeLoader{conn: conn}, nil); !status.Is(err, status.Internal) {
		t.Fatalf("Load = %v, want Internal", err)
	}
	if conn.destroyed != 1 {
		t.Errorf("connection destroyed %d times after failed init, want 1", conn.destroyed)
	}
}

func TestLifecycleSelectorsRefused(t *testing.T) {
	conn := &fakeConnection{}
	client, err := Load("fake", &fakeLoader{conn: conn}, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	var params primitives.ParameterStack
	for _, selector := range []primitives.Selector{primitives.SelectorInvalid, primitives.SelectorInit, primitives.SelectorFini} {
		if err := client.EnclaveCall(selector, &params); !status.Is(err, status.InvalidArgument) {
			t.Errorf("EnclaveCall(%d) = %v, want InvalidArgument", selector, err)
		}
	}
}

func TestDestroyedClientFailsFast(t *testing.T) {
	conn := &fakeConnection{}
	client, err := Load("fake", &fakeLoader{conn: conn}, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := client.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if !client.IsClosed() {
		t.Error("IsClosed() = false after Destroy")
	}
	if conn.destroyed != 1 {
		t.Errorf("connection destroyed %d times, want 1", conn.destroyed)
	}
	// Fini must have been entered before teardown.
	if got := conn.entered[len(conn.entered)-1]; got != primitives.SelectorFini {
		t.Errorf("last entered selector = %d, want SelectorFini", got)
	}
	var params primitives.ParameterStack
	if err := client.EnclaveCall(primitives.SelectorUser, &params); !status.Is(err, status.FailedPrecondition) {
		t.Errorf("EnclaveCall after Destroy = %v, want FailedPrecondition", err)
	}
	if err := client.Destroy(); !status.Is(err, status.FailedPrecondition) {
		t.Errorf("second Destroy = %v, want FailedPrecondition", err)
	}
}

func TestFatalErrorClosesClient(t *testing.T) {
	conn := &fakeConnection{failWith: map[primitives.Selector]error{
		primitives.SelectorUser: status.New(status.Aborted, "enclave has aborted"),
	}}
	client, err := Load("fake", &fakeLoader{conn: conn}, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	var params primitives.ParameterStack
	if err := client.EnclaveCall(primitives.SelectorUser, &params); !status.Is(err, status.Aborted) {
		t.Fatalf("EnclaveCall = %v, want Aborted", err)
	}
	if !client.IsClosed() {
		t.Error("IsClosed() = false after a fatal enclave error")
	}
	// Destroy still reclaims the mapping but skips the fini entry.
	entriesBefore := len(conn.entered)
	if err := client.Destroy(); err != nil {
		t.Errorf("Destroy after fatal error failed: %v", err)
	}
	if len(conn.entered) != entriesBefore {
		t.Errorf("Destroy entered the aborted enclave: %v", conn.entered[entriesBefore:])
	}
	if conn.destroyed != 1 {
		t.Errorf("connection destroyed %d times, want 1", conn.destroyed)
	}
}

func TestDispatchTable(t *testing.T) {
	table := NewDispatchTable()
	selector := primitives.SelectorUser + 9
	calls := 0
	handler := ExitHandler{Callback: func(client *Client, context any, params *primitives.ParameterStack) error {
		calls++
		params.PushString(context.(string))
		return nil
	}, Context: "Hello"}

	if err := table.RegisterExitHandler(selector, handler); err != nil {
		t.Fatalf("RegisterExitHandler failed: %v", err)
	}
	if err := table.RegisterExitHandler(selector, handler); !status.Is(err, status.AlreadyExists) {
		t.Errorf("duplicate registration = %v, want AlreadyExists", err)
	}
	if err := table.RegisterExitHandler(primitives.SelectorInvalid, handler); !status.Is(err, status.InvalidArgument) {
		t.Errorf("registering the invalid selector = %v, want InvalidArgument", err)
	}
	if err := table.RegisterExitHandler(primitives.SelectorRun, handler); !status.Is(err, status.InvalidArgument) {
		t.Errorf("registering a runtime selector = %v, want InvalidArgument", err)
	}

	var params primitives.ParameterStack
	if err := table.InvokeExitHandler(selector, &params, nil); err != nil {
		t.Fatalf("InvokeExitHandler failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("handler invoked %d times, want 1", calls)
	}
	if got, err := params.PopString(); err != nil || got != "Hello" {
		t.Errorf("PopString() = (%q, %v), want (\"Hello\", nil)", got, err)
	}
	if err := table.InvokeExitHandler(selector+1, &params, nil); !status.Is(err, status.NotFound) {
		t.Errorf("InvokeExitHandler(unregistered) = %v, want NotFound", err)
	}
}
