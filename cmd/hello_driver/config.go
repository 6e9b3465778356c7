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
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/donaldww/asylo/pkg/primitives/sim"
)

// config is the driver configuration loaded from the optional TOML file.
type config struct {
	// WindowSize is the size of the simulated enclave memory in bytes.
	// Zero selects the backend default.
	WindowSize int `toml:"window_size"`
	// ThreadSlots bounds concurrent enclave entries. Zero selects the
	// backend default.
	ThreadSlots int `toml:"thread_slots"`
}

// loadConfig loads the driver config from path. An empty path yields the
// backend defaults.
func loadConfig(path string) (*config, error) {
	var c config
	if path == "" {
		return &c, nil
	}
	meta, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	if c.WindowSize < 0 || c.ThreadSlots < 0 {
		return nil, fmt.Errorf("window_size and thread_slots must not be negative")
	}
	return &c, nil
}

// options converts the config to backend options.
func (c *config) options() sim.Options {
	return sim.Options{
		WindowSize:  c.WindowSize,
		ThreadSlots: c.ThreadSlots,
	}
}
