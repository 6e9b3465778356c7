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
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/donaldww/asylo/pkg/log"
	"github.com/donaldww/asylo/pkg/primitives"
	"github.com/donaldww/asylo/pkg/primitives/examples"
	"github.com/donaldww/asylo/pkg/primitives/sim"
	"github.com/donaldww/asylo/pkg/primitives/untrusted"
	"github.com/donaldww/asylo/pkg/status"
)

// Stress implements subcommands.Command for the "stress" command. It hammers
// one enclave with concurrent increment calls from more goroutines than the
// backend has thread slots, retrying with exponential backoff when a call is
// turned away, and verifies every result.
type Stress struct {
	workers int
	calls   int
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "issue concurrent enclave calls and verify the results"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags]`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.workers, "workers", 16, "number of concurrent callers")
	f.IntVar(&s.calls, "calls", 1000, "number of calls each worker makes")
}

// call invokes the increment entry, retrying while the backend is out of
// thread slots. Any other failure is final.
func call(client *untrusted.Client, value int64) (int64, error) {
	var result int64
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Microsecond
	b.MaxElapsedTime = 30 * time.Second
	op := func() error {
		var params primitives.ParameterStack
		primitives.Push(&params, value)
		err := client.EnclaveCall(examples.IncrementSelector, &params)
		switch {
		case err == nil:
		case status.Is(err, status.ResourceExhausted):
			return err
		default:
			return backoff.Permanent(err)
		}
		result, err = primitives.Pop[int64](&params)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, b); err != nil {
		return 0, err
	}
	return result, nil
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if s.workers < 1 || s.calls < 1 {
		Fatalf("-workers and -calls must be positive")
	}
	conf := args[0].(*config)

	loader := sim.Loader{Enclave: examples.HelloEnclave{}, Options: conf.options()}
	client, err := untrusted.Load("stress", loader, nil)
	if err != nil {
		Fatalf("error loading the enclave: %v", err)
	}
	defer func() {
		if err := client.Destroy(); err != nil {
			log.Warningf("error destroying the enclave: %v", err)
		}
	}()

	start := time.Now()
	var group errgroup.Group
	for w := 0; w < s.workers; w++ {
		base := int64(w) * int64(s.calls)
		group.Go(func() error {
			for i := int64(0); i < int64(s.calls); i++ {
				got, err := call(client, base+i)
				if err != nil {
					return err
				}
				if got != base+i+1 {
					return fmt.Errorf("call(%d) = %d, want %d", base+i, got, base+i+1)
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		Fatalf("stress run failed: %v", err)
	}
	total := s.workers * s.calls
	fmt.Printf("%d calls across %d workers in %v\n", total, s.workers, time.Since(start).Round(time.Millisecond))
	return subcommands.ExitSuccess
}
