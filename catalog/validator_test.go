package catalog_test

import (
	"encoding/json"
	"testing"

	"github.com/lunarispay/hookline/catalog"
)

var invoiceSchema = json.RawMessage(`{
	"type": "object",
	"required": ["invoice_id", "amount"],
	"properties": {
		"invoice_id": {"type": "string"},
		"amount": {"type": "number"}
	}
}`)

func TestValidatorAcceptsValidPayload(t *testing.T) {
	v := catalog.NewValidator()

	payload := json.RawMessage(`{"invoice_id": "inv_123", "amount": 4200}`)
	if err := v.Validate(invoiceSchema, payload); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
}

func TestValidatorRejectsInvalidPayload(t *testing.T) {
	v := catalog.NewValidator()

	// Missing required "amount".
	payload := json.RawMessage(`{"invoice_id": "inv_123"}`)
	if err := v.Validate(invoiceSchema, payload); err == nil {
		t.Fatal("expected validation error for missing field")
	}

	// Wrong type.
	payload = json.RawMessage(`{"invoice_id": 7, "amount": 4200}`)
	if err := v.Validate(invoiceSchema, payload); err == nil {
		t.Fatal("expected validation error for wrong type")
	}
}

func TestValidatorSkipsEmptySchema(t *testing.T) {
	v := catalog.NewValidator()

	if err := v.Validate(nil, json.RawMessage(`{"anything": true}`)); err != nil {
		t.Fatalf("nil schema should pass, got %v", err)
	}
}

func TestValidatorRejectsBadSchema(t *testing.T) {
	v := catalog.NewValidator()

	bad := json.RawMessage(`{"type": 42}`)
	if err := v.Validate(bad, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected compile error for malformed schema")
	}
}

func TestValidatorCachesCompiledSchemas(t *testing.T) {
	v := catalog.NewValidator()

	payload := json.RawMessage(`{"invoice_id": "inv_1", "amount": 1}`)
	for range 3 {
		if err := v.Validate(invoiceSchema, payload); err != nil {
			t.Fatal(err)
		}
	}
}
