// Package schema checks generic event payloads against CUE definitions
// before they are decoded into a stream's event type.
//
// A schema source must declare a #Event definition. Definitions are closed,
// so payloads carrying fields the definition does not name are rejected.
// Float-typed fields are rejected at compile time because payloads never
// carry floats.
package schema

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/recall/internal/payload"
)

// Definition is the path every schema source must define.
const Definition = "#Event"

// Schema is a compiled #Event definition.
//
// Thread-safety: Validate may be called concurrently; calls are serialized
// because a cue.Context is not safe for concurrent use.
type Schema struct {
	name string

	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
}

// Compile parses src and extracts its #Event definition.
func Compile(name, src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := v.LookupPath(cue.ParsePath(Definition))
	if !def.Exists() {
		return nil, &CompileError{
			Field:   Definition,
			Message: "definition is required",
			Pos:     v.Pos(),
		}
	}
	if err := def.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := rejectFloats(def, Definition); err != nil {
		return nil, err
	}

	return &Schema{name: name, ctx: ctx, def: def}, nil
}

// MustCompile is like Compile but panics on error. Use for schemas embedded
// in the binary.
func MustCompile(name, src string) *Schema {
	s, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the name the schema was compiled under.
func (s *Schema) Name() string {
	return s.name
}

// Validate unifies v with the definition and requires a concrete result.
func (s *Schema) Validate(v payload.Value) error {
	data, err := payload.Marshal(v)
	if err != nil {
		return fmt.Errorf("validate against %s: %w", s.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	val := s.ctx.CompileBytes(data, cue.Filename("payload.json"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("validate against %s: %w", s.name, formatCUEError(err))
	}
	if err := s.def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate against %s: %w", s.name, formatCUEError(err))
	}
	return nil
}

// rejectFloats walks struct fields and fails on anything that admits a
// float.
func rejectFloats(v cue.Value, path string) error {
	kind := v.IncompleteKind()
	if kind&cue.FloatKind != 0 {
		return &CompileError{
			Field:   path,
			Message: "float types are forbidden, use int instead",
			Pos:     v.Pos(),
		}
	}
	if kind != cue.StructKind {
		return nil
	}
	iter, err := v.Fields(cue.Optional(true))
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := rejectFloats(iter.Value(), path+"."+iter.Selector().String()); err != nil {
			return err
		}
	}
	return nil
}

// CompileError is a schema error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError turns the first CUE error into a CompileError when it
// carries a position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
