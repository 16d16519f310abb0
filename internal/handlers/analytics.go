// internal/handlers/analytics.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/services"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

type AnalyticsHandler struct {
	aggregatorService *services.AggregatorService
	reportService     *services.ReportService
}

func NewAnalyticsHandler(aggregatorService *services.AggregatorService, reportService *services.ReportService) *AnalyticsHandler {
	return &AnalyticsHandler{
		aggregatorService: aggregatorService,
		reportService:     reportService,
	}
}

// analyticsWindow parses the optional from/to query range, defaulting to the
// trailing 30 days.
func analyticsWindow(c *gin.Context) (time.Time, time.Time) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			start = parsed
		}
	}
	if v := c.Query("to"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			end = parsed
		}
	}
	return start, end
}

// GET /groups/:id/analytics
func (h *AnalyticsHandler) GetGroupAnalytics(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	start, end := analyticsWindow(c)
	analytics, err := h.aggregatorService.GenerateMultiStoreAnalytics(groupID, start, end)
	if err != nil {
		utils.NotFoundResponse(c, "Store group")
		return
	}

	utils.SuccessResponse(c, analytics)
}

// GET /groups/:id/inventory/:inventory_id
func (h *AnalyticsHandler) GetUnifiedInventory(c *gin.Context) {
	inventoryID, err := uuid.Parse(c.Param("inventory_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid inventory ID", nil)
		return
	}

	inventory, err := h.aggregatorService.GetUnifiedInventory(inventoryID)
	if err != nil {
		utils.NotFoundResponse(c, "Unified inventory")
		return
	}

	utils.SuccessResponse(c, inventory)
}

// GET /groups/:id/products/similar
func (h *AnalyticsHandler) FindSimilarProducts(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	title := c.Query("title")
	if title == "" {
		utils.BadRequestResponse(c, "title query parameter required", nil)
		return
	}

	matches, err := h.aggregatorService.FindSimilarProducts(groupID, title, c.Query("sku"), 0)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, matches)
}

// GET /groups/:id/customers/:email
func (h *AnalyticsHandler) GetUnifiedCustomer(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	customer, err := h.aggregatorService.FindCustomerByEmail(groupID, c.Param("email"))
	if err != nil {
		utils.NotFoundResponse(c, "Customer")
		return
	}

	utils.SuccessResponse(c, customer)
}

// POST /groups/:id/reports/export
func (h *AnalyticsHandler) ExportReport(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	start, end := analyticsWindow(c)
	key, err := h.reportService.ExportSyncReport(c.Request.Context(), groupID, start, end)
	if err != nil {
		if err == services.ErrReportingDisabled {
			utils.ErrorResponse(c, 503, "REPORTS_DISABLED", err.Error(), nil)
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"group_id": groupID, "report_key": key})
}
