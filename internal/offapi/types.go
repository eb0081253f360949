package offapi

import "strings"

// readResponse is the facts-server read payload (API v1.2). status 1
// means the product exists; status 0 means it is unknown.
type readResponse struct {
	Status        int          `json:"status"`
	StatusVerbose string       `json:"status_verbose"`
	Code          string       `json:"code"`
	Product       *productJSON `json:"product"`
}

// productJSON carries the subset of product fields the core consumes.
type productJSON struct {
	Code               string         `json:"code"`
	ProductName        string         `json:"product_name"`
	Brands             string         `json:"brands"`
	CategoriesTags     []string       `json:"categories_tags"`
	TracesTags         []string       `json:"traces_tags"`
	AllergensTags      []string       `json:"allergens_tags"`
	IngredientsText    string         `json:"ingredients_text"`
	Lang               string         `json:"lang"`
	LanguagesHierarchy []string       `json:"languages_hierarchy"`
	Nutriments         map[string]any `json:"nutriments"`
}

// splitBrands splits the comma-separated brands field.
func splitBrands(brands string) []string {
	if strings.TrimSpace(brands) == "" {
		return nil
	}
	parts := strings.Split(brands, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// languageCodes extracts two-letter codes from hierarchy entries of the
// form "en:english".
func languageCodes(hierarchy []string) []string {
	out := make([]string, 0, len(hierarchy))
	for _, entry := range hierarchy {
		code := entry
		if i := strings.Index(entry, ":"); i > 0 {
			code = entry[:i]
		}
		if code = strings.TrimSpace(code); code != "" {
			out = append(out, code)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
