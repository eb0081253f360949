package product

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/pantryscan/scan-service/internal/barcode"
)

// DefaultLanguage is used when neither side of a record carries a
// primary language code.
const DefaultLanguage = "en"

// Snapshot is a product's data payload at a point in time, either
// fetched from a facts server or created locally by the user. The core
// treats it as immutable once assigned, except for the primary-language
// backfill applied on creation.
type Snapshot struct {
	Barcode         barcode.Identifier `json:"barcode"`
	Name            string             `json:"name,omitempty"`
	Brands          []string           `json:"brands,omitempty"`
	Categories      []string           `json:"categories,omitempty"`
	Traces          []string           `json:"traces,omitempty"`
	Allergens       []string           `json:"allergens,omitempty"`
	IngredientsText string             `json:"ingredientsText,omitempty"`
	Languages       []string           `json:"languages,omitempty"`
	PrimaryLanguage string             `json:"primaryLanguage,omitempty"`
	NutritionFacts  bool               `json:"nutritionFacts,omitempty"`
}

// NewSnapshot creates an empty editable snapshot carrying the given
// identifier, ready for user entry.
func NewSnapshot(id barcode.Identifier) *Snapshot {
	return &Snapshot{Barcode: id}
}

func (s *Snapshot) HasCategories() bool  { return s != nil && len(s.Categories) > 0 }
func (s *Snapshot) HasTraces() bool      { return s != nil && len(s.Traces) > 0 }
func (s *Snapshot) HasAllergens() bool   { return s != nil && len(s.Allergens) > 0 }
func (s *Snapshot) HasIngredients() bool { return s != nil && strings.TrimSpace(s.IngredientsText) != "" }

// MatchedLanguage picks the best of the snapshot's language codes for a
// list of preferred BCP 47 tags, falling back to the primary language.
func (s *Snapshot) MatchedLanguage(preferred []string) string {
	if s == nil {
		return DefaultLanguage
	}
	if len(s.Languages) > 0 && len(preferred) > 0 {
		supported := make([]language.Tag, 0, len(s.Languages))
		codes := make([]string, 0, len(s.Languages))
		for _, code := range s.Languages {
			if tag, err := language.Parse(code); err == nil {
				supported = append(supported, tag)
				codes = append(codes, code)
			}
		}
		if len(supported) > 0 {
			matcher := language.NewMatcher(supported)
			wanted := make([]language.Tag, 0, len(preferred))
			for _, code := range preferred {
				if tag, err := language.Parse(code); err == nil {
					wanted = append(wanted, tag)
				}
			}
			if _, index, confidence := matcher.Match(wanted...); confidence > language.No {
				return codes[index]
			}
		}
	}
	if s.PrimaryLanguage != "" {
		return s.PrimaryLanguage
	}
	return DefaultLanguage
}
