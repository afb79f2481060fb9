package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// positionsSchema 只约束对账需要的字段：instId、posSide、pos 必须是字符串。
const positionsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["instId", "pos"],
    "properties": {
      "instId":  {"type": "string", "minLength": 1},
      "posId":   {"type": "string"},
      "posSide": {"type": "string"},
      "pos":     {"type": "string"}
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func positionsValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("positions.json", strings.NewReader(positionsSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("positions.json")
	})
	return schemaCompiled, schemaErr
}

func validatePositions(raw string) error {
	sch, err := positionsValidator()
	if err != nil {
		return fmt.Errorf("compile positions schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("decode positions push: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("positions push rejected: %w", err)
	}
	return nil
}
