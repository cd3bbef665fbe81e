package ason

import (
	"errors"
	"testing"
)

func TestKeywordValidatorDefaults(t *testing.T) {
	v := NewKeywordValidator()
	if err := v.Validate("return 1 + 2"); err != nil {
		t.Fatalf("clean script rejected: %v", err)
	}
	for _, script := range []string{
		"import socket",
		"__import__('os')",
		"subprocess.run(['ls'])",
		"eval('1')",
	} {
		if err := v.Validate(script); err == nil {
			t.Errorf("script %q accepted", script)
		}
	}
}

func TestKeywordValidatorCustomSet(t *testing.T) {
	v := NewKeywordValidator("BAD")
	if err := v.Validate("bad things"); err == nil {
		t.Fatal("case-insensitive match failed")
	}
	// A custom set replaces the defaults entirely.
	if err := v.Validate("import socket"); err != nil {
		t.Fatalf("default keyword still active: %v", err)
	}
}

func TestKeywordValidatorReturnsValidationError(t *testing.T) {
	v := NewKeywordValidator("forbidden")
	err := v.Validate("forbidden fruit")
	var ve *ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %T", err)
	}
}

func TestKeywordValidatorNormalizesObfuscation(t *testing.T) {
	v := NewKeywordValidator("eval(")
	// Fullwidth characters normalize to ASCII under NFKC.
	if err := v.Validate("ｅｖａｌ（'x'）"); err == nil {
		t.Fatal("fullwidth obfuscation accepted")
	}
}

func TestIsPolicyRefusal(t *testing.T) {
	if !IsPolicyRefusal("Cannot delete system files") {
		t.Fatal("refusal not detected")
	}
	if !IsPolicyRefusal("  Cannot do that") {
		t.Fatal("leading whitespace broke detection")
	}
	if IsPolicyRefusal("I cannot do that") {
		t.Fatal("mid-sentence cannot misdetected")
	}
}
