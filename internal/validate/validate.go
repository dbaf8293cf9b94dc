// Package validate checks design files against the embedded CUE schema before
// they are flattened into node stores. A file that fails here would otherwise
// surface as confusing elaboration diagnostics far from the real mistake.
package validate

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed design.cue
var schemaSource []byte

// Validator validates design files. It is not safe for concurrent use; the
// underlying CUE context is not.
type Validator struct {
	ctx  *cue.Context
	file cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("design.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	file := schema.LookupPath(cue.ParsePath("#File"))
	if err := file.Err(); err != nil {
		return nil, fmt.Errorf("lookup #File: %w", err)
	}
	return &Validator{ctx: ctx, file: file}, nil
}

// ValidateJSON validates raw JSON design file bytes.
func (v *Validator) ValidateJSON(data []byte) error {
	if err := v.check(data); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// check returns the raw CUE error for data.
func (v *Validator) check(data []byte) error {
	value := v.ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return err
	}
	return v.file.Unify(value).Validate(cue.Concrete(true))
}

// Validate validates any value that marshals to the design file shape, such
// as a decoded syntax.SourceFile.
func (v *Validator) Validate(file any) error {
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal design file: %w", err)
	}
	return v.ValidateJSON(data)
}

// Problems lists every individual schema violation in file.
func (v *Validator) Problems(file any) []string {
	data, err := json.Marshal(file)
	if err != nil {
		return []string{fmt.Sprintf("marshal design file: %v", err)}
	}
	err = v.check(data)
	if err == nil {
		return nil
	}
	var out []string
	for _, e := range errors.Errors(err) {
		out = append(out, e.Error())
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}
