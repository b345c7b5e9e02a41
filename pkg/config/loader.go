package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader reads pipeline descriptions from YAML, CUE or Starlark files and
// validates them.
type Loader struct {
	cue       *CUEParser
	starlark  *StarlarkEvaluator
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewLoader creates a loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		cue:       NewCUEParser(),
		starlark:  NewStarlarkEvaluator(10 * time.Second),
		validator: validator.New(),
		logger:    logger.With().Str("component", "pipeline-loader").Logger(),
	}
}

// Load reads and validates the pipeline at path. The format is chosen by
// extension: .yaml, .yml and .json are YAML, .cue is CUE and .star is
// Starlark.
func (l *Loader) Load(ctx context.Context, path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline: %w", err)
	}

	p, err := l.Parse(ctx, path, data)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("path", path).
		Str("pipeline", p.Name).
		Int("tasks", len(p.Tasks)).
		Int("rprims", len(p.Rprims)).
		Msg("Pipeline loaded")

	return p, nil
}

// Parse decodes and validates pipeline content. filename selects the format
// and anchors relative script and module paths.
func (l *Loader) Parse(ctx context.Context, filename string, data []byte) (*Pipeline, error) {
	var (
		p   *Pipeline
		err error
	)

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml", ".json":
		p = &Pipeline{}
		if err = yaml.Unmarshal(data, p); err != nil {
			err = fmt.Errorf("%s: %w", filename, err)
		}
	case ".cue":
		p, err = l.cue.Parse(filename, data)
	case ".star":
		p, err = l.starlark.EvaluatePipeline(ctx, filename, string(data))
	default:
		err = fmt.Errorf("%s: unsupported pipeline format %q", filename, ext)
	}
	if err != nil {
		return nil, err
	}

	p.Source = filename
	p.LoadedAt = time.Now()

	if err := l.Validate(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks struct constraints, the CUE schema and cross-field rules.
// It returns ValidationErrors listing every problem found.
func (l *Loader) Validate(ctx context.Context, p *Pipeline) error {
	var errs ValidationErrors

	if err := l.validator.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate pipeline: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				File:     p.Source,
				Path:     fe.Namespace(),
				Message:  fmt.Sprintf("failed on %q constraint", fe.Tag()),
				Severity: "error",
			})
		}
	}

	if len(errs) == 0 {
		if err := l.cue.SchemaRegistry().ValidatePipeline(ctx, p); err != nil {
			errs = append(errs, ValidationError{File: p.Source, Message: err.Error(), Severity: "error"})
		}
	}

	errs = append(errs, crossCheck(p)...)

	var failed ValidationErrors
	for _, e := range errs {
		if e.Severity == "error" {
			failed = append(failed, e)
			continue
		}
		l.logger.Warn().Str("path", e.Path).Msg(e.Message)
	}
	if len(failed) > 0 {
		return failed
	}
	return nil
}

func crossCheck(p *Pipeline) ValidationErrors {
	var errs ValidationErrors

	tasks := make(map[string]bool, len(p.Tasks))
	for i, t := range p.Tasks {
		if tasks[t.Path] {
			errs = append(errs, ValidationError{
				File:     p.Source,
				Path:     fmt.Sprintf("tasks[%d].path", i),
				Message:  fmt.Sprintf("duplicate task path %s", t.Path),
				Severity: "error",
			})
		}
		tasks[t.Path] = true
	}

	rprims := make(map[string]bool, len(p.Rprims))
	for i, r := range p.Rprims {
		if rprims[r.Path] {
			errs = append(errs, ValidationError{
				File:     p.Source,
				Path:     fmt.Sprintf("rprims[%d].path", i),
				Message:  fmt.Sprintf("duplicate rprim path %s", r.Path),
				Severity: "error",
			})
		}
		rprims[r.Path] = true
	}

	for i, path := range p.Execute {
		if path != "" && !strings.HasPrefix(path, "/") {
			errs = append(errs, ValidationError{
				File:     p.Source,
				Path:     fmt.Sprintf("execute[%d]", i),
				Message:  fmt.Sprintf("task path %q is not absolute", path),
				Severity: "error",
			})
		}
	}

	for i, t := range p.Tasks {
		for _, c := range t.Collection {
			if !rprims[c] {
				errs = append(errs, ValidationError{
					File:     p.Source,
					Path:     fmt.Sprintf("tasks[%d].collection", i),
					Message:  fmt.Sprintf("collection entry %s names no rprim", c),
					Severity: "warning",
				})
			}
		}
	}

	return errs
}

// Resolve returns rel relative to the directory of the pipeline source.
func (p *Pipeline) Resolve(rel string) string {
	if rel == "" || filepath.IsAbs(rel) || p.Source == "" {
		return rel
	}
	return filepath.Join(filepath.Dir(p.Source), rel)
}
