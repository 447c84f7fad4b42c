package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeEmptyOrder, status: http.StatusBadRequest, publicMsg: "order contains no priceable items", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeInvalidPrice, status: http.StatusInternalServerError, publicMsg: "internal server error"},
		{code: CodeGateway, status: http.StatusBadGateway, publicMsg: "payment provider unavailable", retryable: true},
		{code: CodeEmail, status: http.StatusServiceUnavailable, publicMsg: "email delivery failed", retryable: true},
		{code: CodeMissingConfig, status: http.StatusInternalServerError, publicMsg: "internal server error"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestInsufficientStockDetails(t *testing.T) {
	err := InsufficientStock("gs-wind-ind-2020", 65, 60)
	if err.Code() != CodeInsufficientStock {
		t.Fatalf("unexpected code %s", err.Code())
	}
	details, ok := err.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected map details, got %T", err.Details())
	}
	if details["product_id"] != "gs-wind-ind-2020" || details["requested"] != 65 || details["available"] != 60 {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeGateway, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeGateway {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeUnauthorized, "no entry")
	if got := As(err); got == nil || got.Code() != CodeUnauthorized {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpFlattensWrappedError(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "persisting order")

	dump := Dump(err)
	if dump.TopMessage == "" {
		t.Fatalf("expected top message")
	}
	if dump.Code != CodeDependency {
		t.Fatalf("unexpected code %s", dump.Code)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected unwrap chain, got %v", dump.Chain)
	}
	if dump.PGCode != "" {
		t.Fatalf("no driver detail expected, got %q", dump.PGCode)
	}

	if empty := Dump(nil); empty.TopMessage != "" || empty.Chain != nil {
		t.Fatalf("Dump(nil) should be zero, got %+v", empty)
	}
}

func TestDumpExtractsDriverDetail(t *testing.T) {
	pgErr := &pq.Error{
		Code:       "23505",
		Constraint: "idx_orders_order_reference",
		Table:      "orders",
		Detail:     "Key (order_reference) already exists.",
		Message:    "duplicate key value violates unique constraint",
	}
	dump := Dump(Wrap(CodeDependency, pgErr, "inserting order"))
	if dump.PGCode != "23505" {
		t.Fatalf("unexpected pg code %q", dump.PGCode)
	}
	if dump.PGConstraint != "idx_orders_order_reference" || dump.PGTable != "orders" {
		t.Fatalf("driver detail not extracted: %+v", dump)
	}
}
