// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RawResponseKey holds the unparsed extractor output in a failed result.
const RawResponseKey = "raw_response"

// ParseError reports an extractor response that could not be turned into a
// structured payload. Raw keeps the response for inspection.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errNotObject = errors.New("response is not a JSON object")

// ParseResponse decodes an extractor response into a JSON object. Markdown
// code fences and prose around the object are tolerated. When schema is
// non-empty the object must satisfy it.
func ParseResponse(raw, schema string) (map[string]any, error) {
	body := extractJSONObject(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if data == nil {
		return nil, &ParseError{Raw: raw, Err: errNotObject}
	}

	if strings.TrimSpace(schema) != "" {
		if err := validateSchema(schema, data); err != nil {
			return nil, &ParseError{Raw: raw, Err: err}
		}
	}
	return data, nil
}

// extractJSONObject strips code fences and trims to the outermost braces.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func validateSchema(schema string, data map[string]any) error {
	compiled, err := jsonschema.CompileString("output_schema.json", schema)
	if err != nil {
		return fmt.Errorf("compiling output schema: %w", err)
	}
	if err := compiled.Validate(data); err != nil {
		return fmt.Errorf("response does not match output schema: %w", err)
	}
	return nil
}
