package validation

import (
	"errors"
	"testing"
)

type sample struct {
	Name  string `json:"name" validate:"required"`
	Score int    `json:"score" validate:"gte=0,lte=10"`
	Inner struct {
		ID int `json:"id" validate:"required"`
	} `json:"inner"`
}

func TestValidator_Fields(t *testing.T) {
	v := New()

	var s sample
	s.Score = 11
	err := v.Validate(s)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("want *Error, got %T", err)
	}
	for _, f := range []string{"name", "score", "inner.id"} {
		if _, ok := verr.Fields[f]; !ok {
			t.Fatalf("missing field %q in %v", f, verr.Fields)
		}
	}
	if verr.Fields["name"] != "is required" {
		t.Fatalf("unexpected message: %q", verr.Fields["name"])
	}
}

func TestValidator_OK(t *testing.T) {
	s := sample{Name: "x", Score: 5}
	s.Inner.ID = 1
	if err := New().Validate(s); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
