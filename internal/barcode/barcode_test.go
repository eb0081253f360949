package barcode

import (
	"encoding/json"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Valid EAN-13", "3850012345678", "3850012345678"},
		{"UPC-A to EAN-13", "123456789012", "0123456789012"},
		{"Strip hyphens", "385-001-234-5678", "3850012345678"},
		{"Strip spaces", "385 001 234 5678", "3850012345678"},
		{"All zeros placeholder", "0000000000000", ""},
		{"Invalid check digit", "3850012345679", ""},
		{"Short code (internal)", "12345", "12345"},
		{"Empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.input)
			if result != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidateEAN13CheckDigit(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"3850012345678", true},
		{"3850012345679", false},
		{"1234567890128", true},
		{"123", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := validateEAN13CheckDigit(tt.input)
			if result != tt.expected {
				t.Errorf("validateEAN13CheckDigit(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewKeepsUnnormalizableInput(t *testing.T) {
	// Input that fails normalization keeps its trimmed form so the
	// identifier still names something.
	id := New(" 3850012345679 ", Food)
	if id.String() != "3850012345679" {
		t.Errorf("New kept %q, want trimmed raw input", id.String())
	}
	if id.Valid() {
		t.Error("identifier with bad check digit must not be valid")
	}

	empty := New("   ", Food)
	if !empty.IsUndefined() {
		t.Errorf("blank input should produce the undefined identifier, got %q", empty.String())
	}
}

func TestNewCollapsesFormattingOnInvalidCode(t *testing.T) {
	// A mistyped code names the same identifier however it was keyed in.
	dashed := New("385-001-234-5679", Food)
	plain := New("3850012345679", Food)
	if !dashed.Equal(plain) {
		t.Errorf("New produced %q and %q for the same digits", dashed.String(), plain.String())
	}
	if dashed.String() != "3850012345679" {
		t.Errorf("New kept %q, want the stripped digit form", dashed.String())
	}
	if dashed.Valid() {
		t.Error("identifier with bad check digit must not be valid")
	}
}

func TestEqualIgnoresCategory(t *testing.T) {
	a := New("3850012345678", Food)
	b := New("3850012345678", Beauty)
	if !a.Equal(b) {
		t.Error("identifiers with equal codes must be equal regardless of category")
	}
	if a.Category() == b.Category() {
		t.Error("categories should differ in this setup")
	}
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		id   Identifier
	}{
		{"sample", Sample(Food)},
		{"most recent", MostRecent(Food)},
		{"undefined", Undefined(Food)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.id.IsPlaceholder() {
				t.Errorf("%s must be a placeholder", tt.name)
			}
			if tt.id.Valid() {
				t.Errorf("%s must not be valid", tt.name)
			}
		})
	}

	if Sample(Food).Equal(MostRecent(Food)) {
		t.Error("distinct placeholders must not be equal")
	}
	if !Sample(Food).Equal(Sample(Beauty)) {
		t.Error("same placeholder in different categories must be equal")
	}
}

func TestCategoryFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected Category
	}{
		{"food", Food},
		{"Beauty", Beauty},
		{"petfood", PetFood},
		{"pet-food", PetFood},
		{"product", Product},
		{"other", Product},
		{"", Food},
		{"garbage", Food},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CategoryFromString(tt.input); got != tt.expected {
				t.Errorf("CategoryFromString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIdentifierJSONRoundTrip(t *testing.T) {
	orig := New("3850012345678", Beauty)

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Identifier
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !decoded.Equal(orig) || decoded.Category() != orig.Category() {
		t.Errorf("round trip changed identifier: got %q/%q, want %q/%q",
			decoded.String(), decoded.Category(), orig.String(), orig.Category())
	}
}
