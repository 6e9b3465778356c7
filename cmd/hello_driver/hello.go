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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/donaldww/asylo/pkg/log"
	"github.com/donaldww/asylo/pkg/primitives"
	"github.com/donaldww/asylo/pkg/primitives/examples"
	"github.com/donaldww/asylo/pkg/primitives/sim"
	"github.com/donaldww/asylo/pkg/primitives/untrusted"
)

// Hello implements subcommands.Command for the "hello" command.
type Hello struct {
	greeting string
}

// Name implements subcommands.Command.Name.
func (*Hello) Name() string {
	return "hello"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Hello) Synopsis() string {
	return "load the hello enclave and print its greeting"
}

// Usage implements subcommands.Command.Usage.
func (*Hello) Usage() string {
	return `hello [flags]`
}

// SetFlags implements subcommands.Command.SetFlags.
func (h *Hello) SetFlags(f *flag.FlagSet) {
	f.StringVar(&h.greeting, "greeting", "Hello", "greeting the host hands to the enclave")
}

// Execute implements subcommands.Command.Execute.
func (h *Hello) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config)

	exits := untrusted.NewDispatchTable()
	if err := exits.RegisterExitHandler(examples.HelloExitSelector, untrusted.ExitHandler{
		Callback: func(client *untrusted.Client, context any, params *primitives.ParameterStack) error {
			params.PushString(context.(string))
			return nil
		},
		Context: h.greeting,
	}); err != nil {
		Fatalf("error registering the greeting handler: %v", err)
	}

	loader := sim.Loader{Enclave: examples.HelloEnclave{}, Options: conf.options()}
	client, err := untrusted.Load("hello", loader, exits)
	if err != nil {
		Fatalf("error loading the hello enclave: %v", err)
	}
	defer func() {
		if err := client.Destroy(); err != nil {
			log.Warningf("error destroying the hello enclave: %v", err)
		}
	}()

	var params primitives.ParameterStack
	if err := client.EnclaveCall(examples.HelloSelector, &params); err != nil {
		Fatalf("enclave call failed: %v", err)
	}
	answer, err := params.PopString()
	if err != nil {
		Fatalf("enclave returned a malformed answer: %v", err)
	}
	fmt.Println(answer)
	return subcommands.ExitSuccess
}
