// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema validates config.json's shape against a JSON Schema
// document before internal/config decodes it into ProgramConfig,
// following the teacher's pkg/schema package (embedded schema files +
// github.com/santhosh-tekuri/jsonschema/v5, pkg/schema/validate.go).
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed config.schema.json
var schemaFiles embed.FS

func load(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

func init() {
	jsonschema.Loaders["embedFS"] = load
}

// Validate reports whether r's JSON document satisfies config.json's
// schema (port ranges, the enumerated db-driver/debug-level values,
// and no unrecognized top-level keys). It consumes r fully.
func Validate(r io.Reader) error {
	s, err := jsonschema.Compile("embedFS://config.schema.json")
	if err != nil {
		return fmt.Errorf("schema: compile: %w", err)
	}

	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return fmt.Errorf("schema: decode: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
