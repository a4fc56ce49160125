package propellant

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/roach88/ancpsim/internal/formula"
)

//go:embed schema.cue
var schemaCUE string

//go:embed ingredients.json
var defaultDatabaseJSON []byte

// Schema definitions accepted by Validate.
const (
	KindDatabase = "#Database"
	KindRecipe   = "#Recipe"
)

// Issue is a single schema violation.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// ValidationError collects every schema violation found in a file.
type ValidationError struct {
	File   string  `json:"file"`
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("%s: invalid", e.File)
	}
	first := e.Issues[0]
	loc := e.File
	if first.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.File, first.Line, first.Column)
	}
	msg := first.Message
	if first.Path != "" {
		msg = first.Path + ": " + msg
	}
	if len(e.Issues) > 1 {
		return fmt.Sprintf("%s: %s (and %d more)", loc, msg, len(e.Issues)-1)
	}
	return fmt.Sprintf("%s: %s", loc, msg)
}

// LoadDatabase reads and validates an ingredient database file.
func LoadDatabase(path string) (Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ingredient database: %w", err)
	}
	return ParseDatabase(path, data)
}

// ParseDatabase validates data against #Database, decodes it, and checks
// that every formula parses.
func ParseDatabase(filename string, data []byte) (Database, error) {
	v, err := Validate(filename, data, KindDatabase)
	if err != nil {
		return nil, err
	}

	var raw map[string]Ingredient
	if err := v.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode ingredient database: %w", err)
	}

	var issues []Issue
	for _, name := range sortedKeys(raw) {
		if _, err := formula.Parse(raw[name].Formula); err != nil {
			issues = append(issues, Issue{Path: name + ".formula", Message: err.Error()})
		}
	}
	if len(issues) > 0 {
		return nil, &ValidationError{File: filename, Issues: issues}
	}

	return NewDatabase(raw), nil
}

// DefaultDatabase returns the bundled ingredient database.
func DefaultDatabase() Database {
	db, err := ParseDatabase("ingredients.json", defaultDatabaseJSON)
	if err != nil {
		panic(fmt.Sprintf("bundled ingredient database is invalid: %v", err))
	}
	return db
}

// LoadRecipe reads and validates a recipe file.
func LoadRecipe(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	return ParseRecipe(path, data)
}

// ParseRecipe validates data against #Recipe and decodes it.
// A recipe with an empty composition is rejected.
func ParseRecipe(filename string, data []byte) (*Recipe, error) {
	v, err := Validate(filename, data, KindRecipe)
	if err != nil {
		return nil, err
	}

	var r Recipe
	if err := v.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	if len(r.Composition) == 0 {
		return nil, &ValidationError{File: filename, Issues: []Issue{{Path: "composition", Message: "at least one ingredient is required"}}}
	}
	return &r, nil
}

// Validate checks a JSON or YAML document against one of the schema
// definitions (KindDatabase, KindRecipe) and returns the unified value.
func Validate(filename string, data []byte, kind string) (cue.Value, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath(kind))
	if !def.Exists() {
		return cue.Value{}, fmt.Errorf("unknown schema kind %q", kind)
	}

	// JSON is a subset of YAML, so one extractor serves both.
	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return cue.Value{}, toValidationError(filename, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return cue.Value{}, toValidationError(filename, err)
	}

	v := def.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, toValidationError(filename, err)
	}
	return v, nil
}

// toValidationError flattens CUE errors into issues, preferring positions
// inside the validated file over positions inside the schema.
func toValidationError(filename string, err error) *ValidationError {
	verr := &ValidationError{File: filename}
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		issue := Issue{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() == filename {
				issue.Line = pos.Line()
				issue.Column = pos.Column()
				break
			}
		}
		verr.Issues = append(verr.Issues, issue)
	}
	if len(verr.Issues) == 0 {
		verr.Issues = []Issue{{Message: err.Error()}}
	}
	return verr
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
