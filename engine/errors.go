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

import "github.com/latchwork/durex/internal/durexerr"

// Sentinel errors for engine primitives called outside the collaborator
// context they require (see WithStore/WithExecutor/WithRunner).
var (
	ErrNoCurrentStore    = durexerr.New("no store installed on context")
	ErrNoCurrentExecutor = durexerr.New("no executor installed on context")
	ErrNoCurrentRunner   = durexerr.New("no runner installed on context")
)
