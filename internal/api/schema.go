package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const maxRequestBody = 1 << 16

// Challenge request bodies are validated against a schema before binding so
// malformed payloads fail uniformly regardless of which field is wrong.
var challengeRequestSchema = mustCompileSchema("challenge_request.json", `{
	"type": "object",
	"required": ["user_id", "domain"],
	"properties": {
		"user_id": {"type": "string", "minLength": 1},
		"domain": {"type": "string", "minLength": 1}
	}
}`)

func mustCompileSchema(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}

func decodeAndValidate(r *http.Request, schema *jsonschema.Schema, dst any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return errors.New("failed to read payload")
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return errors.New("invalid json")
	}
	if err := schema.Validate(generic); err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
