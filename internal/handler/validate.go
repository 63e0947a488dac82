package handler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sakif/script-executor/internal/apperror"
	"github.com/sakif/script-executor/internal/model"
)

// requestSchema describes a valid execution request body. Unknown properties
// are tolerated so callers can add metadata without breaking.
const requestSchema = `{
	"type": "object",
	"required": ["code"],
	"properties": {
		"code":       {"type": "string", "minLength": 1},
		"input_data": {"type": ["string", "null"]}
	}
}`

// Caller-facing validation messages.
const (
	msgBody      = "Request body must be JSON and not empty."
	msgCode      = "Field 'code' is required and must be a string."
	msgInputData = "Field 'input_data' must be a string if provided."
)

// RequestValidator checks raw request bodies against requestSchema before
// anything is decoded into Go types.
//
// WHY A SCHEMA INSTEAD OF json.Unmarshal ALONE?
// Unmarshal into a struct cannot tell "code missing" from "code is 42" from
// "body is an array" without extra bookkeeping, and each of those must map
// to a precise message. The schema reports which property failed and how.
type RequestValidator struct {
	schema *gojsonschema.Schema
}

// NewRequestValidator compiles the request schema once at startup.
func NewRequestValidator() (*RequestValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("handler: compiling request schema: %w", err)
	}
	return &RequestValidator{schema: schema}, nil
}

// Decode validates body and returns the request it describes. Every failure
// is an apperror.ErrInput.
func (v *RequestValidator) Decode(body []byte) (model.ExecutionRequest, error) {
	var req model.ExecutionRequest

	if len(bytes.TrimSpace(body)) == 0 {
		return req, apperror.InvalidInput("", msgBody)
	}

	// An empty object carries nothing to run; it is rejected like an empty body.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil && len(fields) == 0 {
		return req, apperror.InvalidInput("", msgBody)
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		// Not parseable as JSON at all.
		return req, apperror.InvalidInput("", msgBody)
	}
	if !result.Valid() {
		return req, schemaError(result.Errors())
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, apperror.InvalidInput("", msgBody)
	}
	return req, nil
}

// schemaError picks the message for the first failing property.
func schemaError(errs []gojsonschema.ResultError) error {
	for _, e := range errs {
		switch e.Field() {
		case "input_data":
			return apperror.InvalidInput("input_data", msgInputData)
		case "code":
			return apperror.InvalidInput("code", msgCode)
		}
		if e.Type() == "required" {
			return apperror.InvalidInput("code", msgCode)
		}
	}
	// Root is not an object (array, string, null, ...).
	return apperror.InvalidInput("", msgBody)
}
