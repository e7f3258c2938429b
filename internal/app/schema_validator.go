package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidationError describes one payload that failed schema validation.
type SchemaValidationError struct {
	Path    string
	Message string
}

// Error renders the schema-validation failure.
func (e SchemaValidationError) Error() string {
	path := strings.TrimSpace(e.Path)
	if path == "" {
		path = "$"
	}
	return fmt.Sprintf("%s: %s", path, e.Message)
}

// changeNotificationSchema is the accepted shape of a change notification.
const changeNotificationSchema = `{
	"type": "object",
	"required": ["path"],
	"properties": {
		"path": {"type": "string", "minLength": 1},
		"newValue": {"type": ["object", "null"]},
		"oldValue": {"type": ["object", "null"]}
	}
}`

const changeNotificationSchemaURL = "trisync://schemas/change-notification.json"

var compiledChangeSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileJSONSchema(changeNotificationSchemaURL, changeNotificationSchema)
})

// compileJSONSchema compiles one schema document registered under url.
func compileJSONSchema(url, raw string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", url, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", url, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return schema, nil
}

// validatePayload checks raw JSON bytes against schema. Failures wrap
// ErrValidation and carry a SchemaValidationError.
func validatePayload(schema *jsonschema.Schema, payload []byte) error {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return fmt.Errorf("%w: %w", ErrValidation, SchemaValidationError{Message: "empty payload"})
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, SchemaValidationError{Message: fmt.Sprintf("invalid JSON payload: %v", err)})
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, schemaError(err))
	}
	return nil
}

// schemaError flattens a jsonschema failure into a SchemaValidationError
// pointing at the first failing instance location.
func schemaError(err error) SchemaValidationError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return SchemaValidationError{Message: err.Error()}
	}
	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	path := "$"
	if len(leaf.InstanceLocation) > 0 {
		path = "$." + strings.Join(leaf.InstanceLocation, ".")
	}
	message := strings.Join(strings.Fields(strings.ReplaceAll(err.Error(), "\n", "; ")), " ")
	return SchemaValidationError{Path: path, Message: message}
}

// DecodeChangeNotification validates and decodes one raw change notification.
func DecodeChangeNotification(payload []byte) (ChangeNotification, error) {
	schema, err := compiledChangeSchema()
	if err != nil {
		return ChangeNotification{}, err
	}
	if err := validatePayload(schema, payload); err != nil {
		return ChangeNotification{}, err
	}
	var wire struct {
		Path     string         `json:"path"`
		NewValue map[string]any `json:"newValue"`
		OldValue map[string]any `json:"oldValue"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return ChangeNotification{}, invalidf("decode change notification: %v", err)
	}
	return ChangeNotification{Path: wire.Path, NewValue: wire.NewValue, OldValue: wire.OldValue}, nil
}
