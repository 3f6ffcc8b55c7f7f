package grammar

import (
	_ "embed"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/aretw0/parley/pkg/domain"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	schemaValue cue.Value
	schemaErr   error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func grammarSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = err
			return
		}
		schemaValue = v.LookupPath(cue.ParsePath("#Grammar"))
		schemaErr = schemaValue.Err()
	})
	return schemaCtx, schemaValue, schemaErr
}

// Validate checks the structure of a definition against the grammar schema.
// It does not compile patterns; see internal/compiler for that.
func Validate(def *Definition) error {
	ctx, schema, err := grammarSchema()
	if err != nil {
		return &domain.GrammarError{Reason: "invalid grammar schema", Err: err}
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := ctx.Encode(def)
	if err := v.Err(); err != nil {
		return &domain.GrammarError{Grammar: def.Name, Reason: "cannot encode grammar", Err: err}
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &domain.GrammarError{Grammar: def.Name, Reason: "schema violation", Err: err}
	}
	return nil
}
