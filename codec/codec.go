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

// Package codec defines the generic collaborator that serializes and
// deserializes workflow/activity inputs and outputs to and from the byte
// strings the Store persists. The engine never chooses the byte encoding
// itself; see codec/json for the reference implementation.
package codec

// Codec converts between a typed Go value and the opaque byte
// representation the Store and Queue persist. The reference source
// derives In/Out from runtime reflection over function annotations; a
// static language instead requires the caller to declare and supply a
// Codec[In, Out] explicitly at registration time (SPEC_FULL.md §9).
type Codec[In, Out any] interface {
	EncodeInput(In) ([]byte, error)
	DecodeInput([]byte) (In, error)
	EncodeOutput(Out) ([]byte, error)
	DecodeOutput([]byte) (Out, error)
}
