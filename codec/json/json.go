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

// Package json is the reference Codec implementation: it serializes
// In/Out values to JSON and, when the value is a struct, validates it
// against "validate" struct tags before returning it from Decode*.
package json

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/latchwork/durex/internal/durexerr"
)

var validate = validator.New()

// Codec is the JSON reference implementation of codec.Codec[In, Out].
type Codec[In, Out any] struct{}

// New returns a JSON codec for the given In/Out types. The zero value is
// also usable directly; New exists for call-site symmetry with other
// codec constructors.
func New[In, Out any]() Codec[In, Out] { return Codec[In, Out]{} }

func (Codec[In, Out]) EncodeInput(in In) ([]byte, error) {
	return encode(in)
}

func (Codec[In, Out]) DecodeInput(b []byte) (In, error) {
	return decode[In](b)
}

func (Codec[In, Out]) EncodeOutput(out Out) ([]byte, error) {
	return encode(out)
}

func (Codec[In, Out]) DecodeOutput(b []byte) (Out, error) {
	return decode[Out](b)
}

func encode[T any](v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, durexerr.Wrap(err, "encoding value")
	}
	return b, nil
}

func decode[T any](b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, durexerr.Wrap(err, "decoding value")
	}
	if err := validate.Struct(v); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			// v is not a struct (or a pointer to one); validator has
			// nothing to check, which is the common case for primitive
			// and map-shaped In/Out types.
			return v, nil
		}
		return v, durexerr.Wrap(err, fmt.Sprintf("validating %T", v))
	}
	return v, nil
}
