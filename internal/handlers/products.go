package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/product"
)

// ProductHandler handles product registry HTTP endpoints
type ProductHandler struct {
	collection *product.Collection
}

// NewProductHandler creates a new product handler
func NewProductHandler(collection *product.Collection) *ProductHandler {
	return &ProductHandler{collection: collection}
}

// ProductResponse represents one record in API responses. Scalars are
// the merged view: local values win over remote ones.
type ProductResponse struct {
	Barcode         string   `json:"barcode" jsonschema:"required"`
	Category        string   `json:"category" jsonschema:"required,enum=food,enum=beauty,enum=petfood,enum=product"`
	Status          string   `json:"status" jsonschema:"required,enum=uninitialized,enum=loading,enum=available,enum=updated,enum=failed,enum=not_found"`
	RemoteStatus    string   `json:"remoteStatus" jsonschema:"required"`
	LocalStatus     string   `json:"localStatus" jsonschema:"required"`
	Name            string   `json:"name,omitempty"`
	Brands          []string `json:"brands,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Traces          []string `json:"traces,omitempty"`
	Allergens       []string `json:"allergens,omitempty"`
	IngredientsText string   `json:"ingredientsText,omitempty"`
	PrimaryLanguage string   `json:"primaryLanguage,omitempty"`
	Language        string   `json:"language,omitempty"`
	Comment         string   `json:"comment,omitempty"`
	Editable        bool     `json:"editable"`
}

// ListProductsResponse represents the visible product list
type ListProductsResponse struct {
	Products []ProductResponse `json:"products" jsonschema:"required"`
	Total    int               `json:"total" jsonschema:"required"`
}

// productResponse renders a record. Language is the snapshot language
// best matching the caller's preferred codes.
func productResponse(rec *product.Record, preferred []string) ProductResponse {
	id := rec.Identifier()
	resp := ProductResponse{
		Barcode:      id.String(),
		Category:     string(id.Category()),
		Status:       rec.Status().Kind.String(),
		RemoteStatus: rec.RemoteStatus().Kind.String(),
		LocalStatus:  rec.LocalStatus().Kind.String(),
		Name:         rec.Name(),
		Comment:      rec.Comment(),
		Editable:     rec.UpdateAllowed(),
	}
	if snap := rec.Effective(); snap != nil {
		resp.Brands = snap.Brands
		resp.Categories = rec.Categories()
		resp.Traces = snap.Traces
		resp.Allergens = snap.Allergens
		resp.IngredientsText = snap.IngredientsText
		resp.PrimaryLanguage = rec.PrimaryLanguage()
		resp.Language = snap.MatchedLanguage(preferred)
	}
	return resp
}

// preferredLanguages parses the Accept-Language header into language
// codes in preference order.
func preferredLanguages(c *gin.Context) []string {
	header := c.GetHeader("Accept-Language")
	if header == "" {
		return nil
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil
	}
	codes := make([]string, 0, len(tags))
	for _, tag := range tags {
		codes = append(codes, tag.String())
	}
	return codes
}

// ListProducts returns the visible product list, most recent first
// GET /products
func (h *ProductHandler) ListProducts(c *gin.Context) {
	visible := h.collection.Visible()
	preferred := preferredLanguages(c)
	products := make([]ProductResponse, 0, len(visible))
	for _, rec := range visible {
		products = append(products, productResponse(rec, preferred))
	}
	c.JSON(http.StatusOK, ListProductsResponse{
		Products: products,
		Total:    len(products),
	})
}

// ScanProductResponse represents the 202 response when a scan is registered
type ScanProductResponse struct {
	Barcode  string `json:"barcode" jsonschema:"required"`
	Status   string `json:"status" jsonschema:"required"`
	Position int    `json:"position" jsonschema:"required"`
}

// ScanProduct registers a scanned barcode and starts resolving it
// POST /products/:barcode
// Returns 202 Accepted; resolution continues in the background.
// ?reload=true bypasses intermediate caches on the fetch.
func (h *ProductHandler) ScanProduct(c *gin.Context) {
	id, ok := h.identifierParam(c)
	if !ok {
		return
	}

	rec := h.collection.LookupAndActivate(id, c.Query("reload") == "true")
	pos, _ := h.collection.Position(rec)
	c.JSON(http.StatusAccepted, ScanProductResponse{
		Barcode:  rec.Identifier().String(),
		Status:   rec.Status().Kind.String(),
		Position: pos,
	})
}

// GetProduct returns a single tracked product
// GET /products/:barcode
func (h *ProductHandler) GetProduct(c *gin.Context) {
	rec, ok := h.lookupParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, productResponse(rec, preferredLanguages(c)))
}

// DeleteProduct removes a product from the registry and history
// DELETE /products/:barcode
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	rec, ok := h.lookupParam(c)
	if !ok {
		return
	}

	pos, found := h.collection.Position(rec)
	if !found || !h.collection.Remove(pos) {
		c.JSON(http.StatusConflict, gin.H{"error": "product is not removable"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ReloadProduct forces a fresh fetch bypassing intermediate caches
// POST /products/:barcode/reload
func (h *ProductHandler) ReloadProduct(c *gin.Context) {
	rec, ok := h.lookupParam(c)
	if !ok {
		return
	}

	rec.Reload()
	c.JSON(http.StatusAccepted, gin.H{
		"barcode": rec.Identifier().String(),
		"status":  rec.Status().Kind.String(),
	})
}

// SetCommentRequest represents a request to attach a note to a scan
type SetCommentRequest struct {
	Comment string `json:"comment" jsonschema:"required"`
}

// SetComment attaches a user note to a tracked product
// POST /products/:barcode/comment
func (h *ProductHandler) SetComment(c *gin.Context) {
	rec, ok := h.lookupParam(c)
	if !ok {
		return
	}

	var req SetCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec.SetComment(req.Comment)
	c.JSON(http.StatusOK, productResponse(rec, preferredLanguages(c)))
}

// LocalEditRequest represents user-entered product data. Fields left
// empty keep whatever the remote snapshot carries.
type LocalEditRequest struct {
	Name            string   `json:"name,omitempty"`
	Brands          []string `json:"brands,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Traces          []string `json:"traces,omitempty"`
	Allergens       []string `json:"allergens,omitempty"`
	IngredientsText string   `json:"ingredientsText,omitempty"`
	PrimaryLanguage string   `json:"primaryLanguage,omitempty"`
}

// SetLocal replaces the local overlay of a tracked product
// PUT /products/:barcode/local
func (h *ProductHandler) SetLocal(c *gin.Context) {
	rec, ok := h.lookupParam(c)
	if !ok {
		return
	}

	if !rec.UpdateAllowed() {
		c.JSON(http.StatusConflict, gin.H{"error": "product is not editable"})
		return
	}

	var req LocalEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap := product.NewSnapshot(rec.Identifier())
	snap.Name = req.Name
	snap.Brands = req.Brands
	snap.Categories = req.Categories
	snap.Traces = req.Traces
	snap.Allergens = req.Allergens
	snap.IngredientsText = req.IngredientsText
	snap.PrimaryLanguage = req.PrimaryLanguage

	rec.SetLocal(snap)
	c.JSON(http.StatusOK, productResponse(rec, preferredLanguages(c)))
}

// ResetHistory clears the registry back to its initial sample state
// DELETE /products
func (h *ProductHandler) ResetHistory(c *gin.Context) {
	h.collection.ResetAll()
	c.Status(http.StatusNoContent)
}

// lookupParam resolves the :barcode path parameter to a tracked record
func (h *ProductHandler) lookupParam(c *gin.Context) (*product.Record, bool) {
	id, ok := h.identifierParam(c)
	if !ok {
		return nil, false
	}

	rec := h.collection.RecordFor(id)
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not tracked"})
		return nil, false
	}
	return rec, true
}

// identifierParam builds an identifier from the :barcode path parameter
// and the optional category query parameter
func (h *ProductHandler) identifierParam(c *gin.Context) (barcode.Identifier, bool) {
	code := c.Param("barcode")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "barcode parameter is required"})
		return barcode.Identifier{}, false
	}

	category := h.collection.Filter()
	if raw := c.Query("category"); raw != "" {
		category = barcode.CategoryFromString(raw)
	}

	id := barcode.New(code, category)
	if id.IsPlaceholder() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "barcode is reserved"})
		return barcode.Identifier{}, false
	}
	return id, true
}
