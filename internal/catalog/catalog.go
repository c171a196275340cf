// Package catalog holds an optional registry of event types and their
// payload schemas, written in CUE:
//
//	event: DOC_SERVED: payload: {
//		doc:     string
//		method?: "mail" | "hand"
//	}
//	event: LOGIN: {}
//
// An event without a payload schema accepts any payload. A payload is valid
// when it unifies with the schema and the result is concrete.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/custody/internal/ledger"
)

// Catalog validates payloads against per-event CUE schemas.
//
// Thread-safety: Validate is safe for concurrent use. cue.Context is not,
// so every use of it is serialized.
type Catalog struct {
	mu     sync.Mutex
	ctx    *cue.Context
	events map[string]cue.Value // event type -> payload schema (zero Value = any)
}

// CatalogError reports a problem in the catalog source itself.
type CatalogError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CatalogError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a catalog from a .cue file or from a directory holding one CUE
// package.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
		return Compile(src, path)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &CatalogError{Field: "load", Message: fmt.Sprintf("no CUE instances in %s", path)}
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	return build(ctx, ctx.BuildInstance(instances[0]))
}

// Compile builds a catalog from CUE source. filename is used in error
// positions only.
func Compile(src []byte, filename string) (*Catalog, error) {
	ctx := cuecontext.New()
	return build(ctx, ctx.CompileBytes(src, cue.Filename(filename)))
}

func build(ctx *cue.Context, v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	eventsVal := v.LookupPath(cue.ParsePath("event"))
	if !eventsVal.Exists() {
		return nil, &CatalogError{Field: "event", Message: "catalog declares no events", Pos: v.Pos()}
	}

	iter, err := eventsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	c := &Catalog{ctx: ctx, events: make(map[string]cue.Value)}
	for iter.Next() {
		name := iter.Label()
		payload := iter.Value().LookupPath(cue.ParsePath("payload"))
		if payload.Exists() {
			if err := payload.Err(); err != nil {
				return nil, formatCUEError(err)
			}
			c.events[name] = payload
		} else {
			c.events[name] = cue.Value{}
		}
	}

	if len(c.events) == 0 {
		return nil, &CatalogError{Field: "event", Message: "catalog declares no events", Pos: eventsVal.Pos()}
	}
	return c, nil
}

// Events returns the declared event types, sorted.
func (c *Catalog) Events() []string {
	names := make([]string, 0, len(c.events))
	for name := range c.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether eventType is declared.
func (c *Catalog) Has(eventType string) bool {
	_, ok := c.events[eventType]
	return ok
}

// Validate checks payload against the schema declared for eventType.
// Returns a ValidationError for an undeclared event type or a payload the
// schema rejects.
func (c *Catalog) Validate(eventType string, payload ledger.Object) error {
	schema, ok := c.events[eventType]
	if !ok {
		return ledger.NewValidationError("unknown event type %q", eventType)
	}
	if !schema.Exists() {
		return nil
	}
	if payload == nil {
		payload = ledger.Object{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	val := c.ctx.Encode(ledger.ToGo(payload))
	if err := val.Err(); err != nil {
		return ledger.NewValidationError("%s payload: %v", eventType, err)
	}

	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return ledger.NewValidationError("%s payload: %s", eventType, firstMessage(err))
	}
	return nil
}

// firstMessage returns the first of possibly many CUE errors.
func firstMessage(err error) string {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CatalogError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
