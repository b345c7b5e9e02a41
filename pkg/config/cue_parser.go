package config

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// CUEParser parses pipeline descriptions written in CUE. The file's top
// level is unified with the #Pipeline schema before decoding, so CUE
// constraints and defaults in the file apply.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	return &CUEParser{
		ctx:            ctx,
		schemaRegistry: NewSchemaRegistry(ctx),
	}
}

// ParseFile parses a single .cue file.
func (cp *CUEParser) ParseFile(path string) (*Pipeline, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return cp.Parse(path, content)
}

// ParseDirectory loads a directory as a CUE package and parses the result.
func (cp *CUEParser) ParseDirectory(dir string) (*Pipeline, error) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return nil, ValidationErrors{{File: dir, Message: "no CUE files found", Severity: "error"}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return nil, cp.convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return nil, cp.convertCUEErrors(err)
	}
	return cp.decode(val)
}

// Parse parses CUE content; filename is used in error positions.
func (cp *CUEParser) Parse(filename string, content []byte) (*Pipeline, error) {
	val := cp.ctx.CompileBytes(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, cp.convertCUEErrors(err)
	}
	return cp.decode(val)
}

func (cp *CUEParser) decode(val cue.Value) (*Pipeline, error) {
	unified, err := cp.schemaRegistry.Unify("pipeline", val)
	if err != nil {
		return nil, cp.convertCUEErrors(err)
	}

	var p Pipeline
	if err := unified.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline: %w", err)
	}
	return &p, nil
}

// SchemaRegistry returns the schema registry.
func (cp *CUEParser) SchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func (cp *CUEParser) convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}
