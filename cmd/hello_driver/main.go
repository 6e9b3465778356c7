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

// Binary hello_driver runs the demonstration enclaves against the simulated
// backend. It exists to show the untrusted side of the primitives layer end
// to end: loading, entry calls, exit calls, and teardown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/donaldww/asylo/pkg/log"
)

var (
	configPath = flag.String("config", "", "path to a TOML file configuring the simulated backend")
	debug      = flag.Bool("debug", false, "enable debug logging")
)

// Fatalf logs to the debug log and prints to stderr before exiting. The
// subcommand implementations use it for errors that are the user's problem
// rather than bugs.
func Fatalf(format string, args ...any) {
	log.Warningf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(128)
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Hello), "")
	subcommands.Register(new(Stress), "")

	flag.Parse()

	if *debug {
		log.SetLevel(log.Debug)
	}

	conf, err := loadConfig(*configPath)
	if err != nil {
		Fatalf("error loading configuration: %v", err)
	}

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}
