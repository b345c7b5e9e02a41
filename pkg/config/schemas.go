package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas. Values
// validated by the registry must come from the same cue.Context; a nil ctx
// creates one.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	for name, def := range map[string]string{
		"pipeline": "#Pipeline",
		"task":     "#Task",
		"rprim":    "#Rprim",
		"driver":   "#Driver",
	} {
		if err := sr.RegisterSchema(name, builtinPipelineSchema, def); err != nil {
			panic(err)
		}
	}

	return sr
}

// RegisterSchema compiles source and registers its definition under name.
func (sr *SchemaRegistry) RegisterSchema(name, source, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s: definition %s not found", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies val with the named schema and checks the result is
// concrete.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidatePipeline validates a pipeline against the pipeline schema.
func (sr *SchemaRegistry) ValidatePipeline(ctx context.Context, p *Pipeline) error {
	return sr.ValidateAgainstSchema(ctx, "pipeline", p)
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinPipelineSchema = `
#Path: =~"^/"

#Driver: {
	name:    string & !=""
	device?: string
}

#Task: {
	path: #Path
	type: "render_setup" | "render" | "present" | "script" | "wasm"

	camera?:      string
	viewport?:    [int, int, int, int]
	clear_color?: [number, number, number, number]
	collection?:  [...#Path]

	script?:      string
	script_file?: string
	max_steps?:   int & >=0

	module?: string
}

#Rprim: {
	path:    #Path
	points?: [...number]
}

#Pipeline: {
	name:      string & !=""
	frames?:   int & >=0
	drivers?:  [...#Driver]
	tasks?:    [...#Task]
	execute?:  [...string]
	rprims?:   [...#Rprim]
	viewport?: [int, int, int, int]
	policy?: {
		enabled: bool
		paths?:  [...string]
		mode?:   "advisory" | "enforcing"
	}
}
`
