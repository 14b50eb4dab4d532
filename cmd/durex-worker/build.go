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

package main

import (
	"fmt"

	"github.com/latchwork/durex/internal/config"
	"github.com/latchwork/durex/queue"
	"github.com/latchwork/durex/repo"
	"github.com/latchwork/durex/store"
	"github.com/latchwork/durex/store/document"
	"github.com/latchwork/durex/store/memorystore"
	"github.com/latchwork/durex/store/postgres"
	"github.com/latchwork/durex/store/sqlite"
)

// openStore constructs the Store backend named by cfg.Store.Backend. The
// returned Store must be Closed by the caller.
func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memorystore.New(), nil
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "document":
		return document.Open(cfg.Path)
	case "postgres":
		return postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// openQueue wires a Store into a Repositories set and a DBQueue over the
// configured queue ID.
func openQueue(s store.Store, cfg config.QueueConfig) *queue.DBQueue {
	repos := repo.New(s)
	return queue.New(cfg.ID, repos.Tasks)
}
