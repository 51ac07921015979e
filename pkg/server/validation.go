package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 1 << 20

const chatMessageSchema = `{
	"type": "object",
	"required": ["message"],
	"properties": {
		"message": {"type": "string", "minLength": 1},
		"sessionId": {"type": "string", "format": "uuid"},
		"channel": {"type": "string"}
	}
}`

const loginSchema = `{
	"type": "object",
	"required": ["username", "password"],
	"properties": {
		"username": {"type": "string", "minLength": 3},
		"password": {"type": "string", "minLength": 6}
	}
}`

const signupSchema = `{
	"type": "object",
	"required": ["username", "password", "name"],
	"properties": {
		"username": {"type": "string", "minLength": 3},
		"password": {"type": "string", "minLength": 6},
		"name": {"type": "string", "minLength": 2}
	}
}`

const verifySchema = `{
	"type": "object",
	"properties": {
		"token": {"type": "string"}
	}
}`

// fieldMessages maps a failing field to the text returned to the caller.
var fieldMessages = map[string]string{
	"message":   "Message cannot be empty",
	"sessionId": "Invalid session ID",
	"channel":   "Invalid channel",
	"username":  "Username must be at least 3 characters",
	"password":  "Password must be at least 6 characters",
	"name":      "Name must be at least 2 characters",
}

type schemas struct {
	chatMessage *gojsonschema.Schema
	login       *gojsonschema.Schema
	signup      *gojsonschema.Schema
	verify      *gojsonschema.Schema
}

func mustCompileSchemas() *schemas {
	compile := func(src string) *gojsonschema.Schema {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic(fmt.Sprintf("compile schema: %v", err))
		}
		return s
	}
	return &schemas{
		chatMessage: compile(chatMessageSchema),
		login:       compile(loginSchema),
		signup:      compile(signupSchema),
		verify:      compile(verifySchema),
	}
}

// badRequest is a validation failure with a caller-facing message.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

// decodeBody reads the request body, validates it against schema and
// unmarshals it into v.
func decodeBody(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &badRequest{msg: "Request body too large"}
		}
		return err
	}
	if err := validateJSON(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &badRequest{msg: "Invalid JSON body"}
	}
	return nil
}

func validateJSON(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &badRequest{msg: "Invalid JSON body"}
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	field := first.Field()
	if first.Type() == "required" {
		if p, ok := first.Details()["property"].(string); ok {
			field = p
		}
	}
	if msg, ok := fieldMessages[field]; ok {
		return &badRequest{msg: msg}
	}
	if field == "(root)" {
		return &badRequest{msg: "Invalid request body"}
	}
	return &badRequest{msg: first.String()}
}
