// Copyright 2025 Tom Barlow
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

package engine

import (
	"fmt"
	"sync"
)

// registry maps a task/workflow name to its non-generic Invoker, so the
// worker loop can dispatch a Task by name without knowing the concrete
// Go types involved.
var registry = struct {
	mu sync.RWMutex
	m  map[string]Invoker
}{m: make(map[string]Invoker)}

// Register adds inv under inv.Name(), failing if the name is already taken.
// NewWorkflow calls this from its constructor; activities are not registered.
func Register(inv Invoker) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	name := inv.Name()
	if _, exists := registry.m[name]; exists {
		return fmt.Errorf("engine: %q already registered", name)
	}
	registry.m[name] = inv
	return nil
}

// Lookup returns the Invoker registered under name, if any.
func Lookup(name string) (Invoker, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	inv, ok := registry.m[name]
	return inv, ok
}
