// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides foreman's standard CBOR encoding configuration.
//
// foreman uses two serialization formats with a clear boundary: JSON for
// external surfaces (the dispatch HTTP API, CLI output, task payloads)
// and CBOR for the local admin socket protocol. This package holds the
// shared CBOR modes so every consumer encodes identically.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical value always produces identical bytes, which keeps the
// socket protocol diffable in captures and tests.
//
// Types that only ever cross the admin socket use `cbor` struct tags.
// Types that also appear in JSON output carry `json` tags only —
// fxamacker/cbor reads them as a fallback, so one tag controls both
// spellings. Never put both tags on one field.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// foreman never uses non-string map keys. Decoding into an
		// any-typed target must therefore produce map[string]any, not
		// the CBOR default map[any]any, so decoded values stay
		// compatible with encoding/json and ordinary Go code.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// Encoder is a CBOR stream encoder. Alias so consumers import only
// lib/codec, not fxamacker/cbor directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value, used to delay decoding or
// embed pre-encoded output.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing to w with the standard
// deterministic configuration.
func NewEncoder(w io.Writer) *Encoder { return encMode.NewEncoder(w) }

// NewDecoder returns a stream decoder reading from r with the standard
// decoding configuration.
func NewDecoder(r io.Reader) *Decoder { return decMode.NewDecoder(r) }
