package characteristics

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// FileFormulas serves the stored conversion expressions, keyed by entity
// type then characteristic id. An expression is either an arithmetic string
// or a serialized lookup table; the formula package decides which.
type FileFormulas struct {
	exprs map[string]map[string]json.RawMessage
}

// NewFileFormulas loads a conversion-formula file of the shape
// {"monster": {"level": "floor([level]/10)", "strength": {...table...}}}.
func NewFileFormulas(path string) (*FileFormulas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "characteristics: read formulas %s", path)
	}

	var exprs map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &exprs); err != nil {
		return nil, eris.Wrapf(err, "characteristics: parse formulas %s", path)
	}
	return &FileFormulas{exprs: exprs}, nil
}

// Expression returns the stored expression for a characteristic of an
// entity, or "" when none is configured. String expressions are unquoted;
// table objects are returned as their raw JSON.
func (f *FileFormulas) Expression(characteristic, entity string) (string, error) {
	raw, ok := f.exprs[entity][characteristic]
	if !ok {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return string(raw), nil
}
