package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pantryscan/scan-service/internal/product"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Tracked int    `json:"tracked"`
	Visible int    `json:"visible"`
}

// HealthCheck reports service liveness and registry size
func HealthCheck(collection *product.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:  "ok",
			Tracked: collection.Size(),
			Visible: collection.Count(),
		})
	}
}
