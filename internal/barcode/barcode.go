// Package barcode defines the canonical identity of a scanned product.
package barcode

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Category selects which facts server a product belongs to.
type Category string

const (
	Food    Category = "food"
	Beauty  Category = "beauty"
	PetFood Category = "petfood"
	Product Category = "product"
)

// CategoryFromString parses a category name, defaulting to Food.
func CategoryFromString(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Beauty):
		return Beauty
	case string(PetFood), "pet-food":
		return PetFood
	case string(Product), "other":
		return Product
	default:
		return Food
	}
}

// Synthetic codes for placeholder identifiers. They occupy a slot in the
// product list before real data exists and are never sent to a server.
const (
	sampleCode     = "sample"
	mostRecentCode = "most-recent"
	undefinedCode  = "undefined"
)

var (
	nonDigitRe    = regexp.MustCompile(`[^0-9]`)
	placeholderRe = regexp.MustCompile(`^0+$`)
)

// Identifier is a normalized barcode plus a product category.
// Equality is defined on the normalized string form only; the category
// never participates in identity.
type Identifier struct {
	code     string
	category Category
}

// New builds an identifier from raw scanner or keyboard input.
// The code is normalized (non-digits stripped, UPC-A promoted to EAN-13);
// input that fails validation keeps its stripped digit form so the same
// mistyped code names the same identifier regardless of formatting, and
// input without digits keeps its trimmed form so the identifier is never
// empty. Valid reports the check-digit verdict.
func New(code string, category Category) Identifier {
	normalized := Normalize(code)
	if normalized == "" {
		normalized = nonDigitRe.ReplaceAllString(code, "")
	}
	if normalized == "" {
		normalized = strings.TrimSpace(code)
	}
	if normalized == "" {
		return Undefined(category)
	}
	return Identifier{code: normalized, category: category}
}

// Sample returns the non-removable sample placeholder for a category.
func Sample(category Category) Identifier {
	return Identifier{code: sampleCode, category: category}
}

// MostRecent returns the most-recent placeholder. It is the only
// identifier a record may be retargeted away from once a fetch resolves.
func MostRecent(category Category) Identifier {
	return Identifier{code: mostRecentCode, category: category}
}

// Undefined returns the undefined variant. It is a distinct value, not
// an empty identifier.
func Undefined(category Category) Identifier {
	return Identifier{code: undefinedCode, category: category}
}

// String returns the normalized string form used for identity.
func (id Identifier) String() string { return id.code }

// Category returns the product category tag.
func (id Identifier) Category() Category { return id.category }

// Equal compares identifiers on the normalized string form only.
func (id Identifier) Equal(other Identifier) bool { return id.code == other.code }

func (id Identifier) IsSample() bool     { return id.code == sampleCode }
func (id Identifier) IsMostRecent() bool { return id.code == mostRecentCode }
func (id Identifier) IsUndefined() bool  { return id.code == undefinedCode }

// IsPlaceholder reports whether the identifier is one of the synthetic
// stand-in variants rather than a real barcode.
func (id Identifier) IsPlaceholder() bool {
	return id.IsSample() || id.IsMostRecent() || id.IsUndefined()
}

// Valid reports whether the code is a checkable EAN-13 with a correct
// check digit. Shorter internal codes and placeholders are not valid.
func (id Identifier) Valid() bool {
	return len(id.code) == 13 && validateEAN13CheckDigit(id.code)
}

// identifierJSON is the wire form of an Identifier.
type identifierJSON struct {
	Code     string   `json:"code"`
	Category Category `json:"category"`
}

// MarshalJSON encodes the identifier as {"code": ..., "category": ...}.
func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(identifierJSON{Code: id.code, Category: id.category})
}

// UnmarshalJSON decodes without re-normalizing: a stored code is
// already in canonical form.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	var wire identifierJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Code == "" {
		*id = Undefined(wire.Category)
		return nil
	}
	id.code = wire.Code
	id.category = wire.Category
	return nil
}

// Normalize handles UPC-A vs EAN-13, leading zeros and invalid codes.
// Returns empty string for input that cannot name a product.
func Normalize(code string) string {
	bc := nonDigitRe.ReplaceAllString(code, "")
	if bc == "" {
		return ""
	}

	// Placeholder barcodes (all zeros) never identify anything.
	if placeholderRe.MatchString(bc) {
		return ""
	}

	// UPC-A (12 digits) -> EAN-13 (add leading 0)
	if len(bc) == 12 {
		bc = "0" + bc
	}

	// Shorter codes (EAN-8, internal codes) pass through as-is.
	if len(bc) != 13 {
		return bc
	}

	if !validateEAN13CheckDigit(bc) {
		return ""
	}

	return bc
}

// validateEAN13CheckDigit validates the EAN-13 check digit.
func validateEAN13CheckDigit(bc string) bool {
	if len(bc) != 13 {
		return false
	}
	sum := 0
	for i := 0; i < 12; i++ {
		d := int(bc[i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += d * 3
		}
	}
	checkDigit := (10 - (sum % 10)) % 10
	return int(bc[12]-'0') == checkDigit
}
