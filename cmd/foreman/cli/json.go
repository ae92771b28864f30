// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"os"
	"reflect"
)

// JSONOutput adds --json support to a params struct by embedding:
//
//	type listParams struct {
//	    cli.JSONOutput
//	}
//
//	// in Run:
//	if done, err := params.EmitJSON(tasks); done {
//	    return err
//	}
//	// ... table formatting ...
type JSONOutput struct {
	OutputJSON bool `json:"-" flag:"json" desc:"output as JSON instead of a table"`
}

// EmitJSON writes result as indented JSON to stdout when --json is
// set. Returns (true, err) when JSON mode handled the output and the
// caller should stop, (false, nil) when the caller should render text.
// Nil slices serialize as [] rather than null.
func (j *JSONOutput) EmitJSON(result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	return true, WriteJSON(emptyIfNilSlice(result))
}

// WriteJSON writes value to stdout as indented JSON.
func WriteJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// emptyIfNilSlice substitutes an empty slice for a nil one so JSON
// consumers see [] instead of null. Non-slice values pass through.
func emptyIfNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
