package validation

import (
	"strings"
	"testing"
)

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"+5511999990000", true},
		{"5511999990000", true},
		{"+55 (11) 99999-0000", true},
		{"+1 415 555 0100", true},
		{"12345", false},
		{"", false},
		{"+0123456789", false},
		{"not-a-phone", false},
		{"+55119999900001234567", false},
	}

	for _, tt := range tests {
		if got := IsValidPhone(tt.phone); got != tt.want {
			t.Errorf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	got := NormalizePhone(" +55 (11) 99999-0000 ")
	if got != "+5511999990000" {
		t.Errorf("NormalizePhone = %q", got)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString(strings.Repeat("a", 50), 10); len(got) != 10 {
		t.Errorf("SanitizeString did not truncate, len = %d", len(got))
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	errs := Validate(
		Required("name", ""),
		Required("phone", "+5511999990000"),
		ValidPhone("phone", "bogus"),
		NonNegativeCents("amount", -500),
	)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "name" {
		t.Errorf("first error field = %s", errs[0].Field)
	}
	if errs.Error() == "" {
		t.Error("Errors.Error() should be non-empty")
	}
}

func TestValidate_ZeroAmountAllowed(t *testing.T) {
	errs := Validate(NonNegativeCents("amount", 0))
	if len(errs) != 0 {
		t.Fatalf("zero amount should be valid, got %v", errs)
	}
}
