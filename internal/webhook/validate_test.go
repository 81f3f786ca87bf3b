package webhook

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeAUPhone(t *testing.T) {
	cases := map[string]string{
		"0412 345 678":   "+61412345678",
		"412345678":      "+61412345678",
		"61412345678":    "+61412345678",
		"+61 412 345 678": "+61412345678",
	}
	for input, want := range cases {
		if got := normalizeAUPhone(input); got != want {
			t.Errorf("normalizeAUPhone(%q) = %q, want %q", input, got, want)
		}
	}
}

type decodeTarget struct {
	Name string `json:"name" validate:"required"`
}

func TestDecodeAndValidateMissingField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
	var dst decodeTarget
	if err := decodeAndValidate(req, &dst); err == nil {
		t.Fatalf("expected validation error for missing required field")
	}
}

func TestDecodeAndValidateOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"clinic"}`))
	var dst decodeTarget
	if err := decodeAndValidate(req, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Name != "clinic" {
		t.Fatalf("expected decoded name, got %q", dst.Name)
	}
}

func TestDecodeAndValidateMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{`))
	var dst decodeTarget
	if err := decodeAndValidate(req, &dst); err == nil {
		t.Fatalf("expected decode error for malformed json")
	}
}

func TestDecodeAndValidateRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"clinic","extra":"field"}`))
	var dst decodeTarget
	if err := decodeAndValidate(req, &dst); err == nil {
		t.Fatalf("expected decode error for unknown field")
	}
}
