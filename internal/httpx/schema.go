package httpx

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Body POST /api/transaction dari wallet. account boleh kosong di sini,
// builder yang menolak dengan pesan yang dikenal wallet.
var transactionRequestSchema = mustSchema(`{
	"type": "object",
	"properties": {
		"account": {"type": "string", "maxLength": 64}
	}
}`)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

func validateBody(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid request body: %s", strings.Join(msgs, "; "))
	}
	return nil
}
