// internal/handlers/conflict.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/services"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

type ConflictHandler struct {
	conflictService *services.ConflictService
}

func NewConflictHandler(conflictService *services.ConflictService) *ConflictHandler {
	return &ConflictHandler{conflictService: conflictService}
}

// GET /conflicts
func (h *ConflictHandler) ListConflicts(c *gin.Context) {
	filter := services.ConflictFilter{
		Status: models.ConflictStatus(c.Query("status")),
		Type:   models.ConflictType(c.Query("type")),
	}
	if groupIDStr := c.Query("group_id"); groupIDStr != "" {
		groupID, err := uuid.Parse(groupIDStr)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid group ID", nil)
			return
		}
		filter.GroupID = groupID
	}

	params := utils.GetPaginationParams(c)
	conflicts, total, err := h.conflictService.GetConflicts(filter, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(conflicts, total, params))
}

// GET /conflicts/:id
func (h *ConflictHandler) GetConflict(c *gin.Context) {
	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid conflict ID", nil)
		return
	}

	conflict, err := h.conflictService.GetConflict(conflictID)
	if err != nil {
		utils.NotFoundResponse(c, "Conflict")
		return
	}

	utils.SuccessResponse(c, conflict)
}

// POST /conflicts/:id/resolve
func (h *ConflictHandler) ResolveConflict(c *gin.Context) {
	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid conflict ID", nil)
		return
	}

	var req services.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	conflict, err := h.conflictService.ResolveConflict(c.Request.Context(), conflictID, &req)
	if err != nil {
		if err == services.ErrConflictNotPending {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, conflict)
}

// POST /conflicts/:id/ignore
func (h *ConflictHandler) IgnoreConflict(c *gin.Context) {
	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid conflict ID", nil)
		return
	}

	userID, _ := utils.GetUserIDFromContext(c)

	conflict, err := h.conflictService.IgnoreConflict(conflictID, userID.String())
	if err != nil {
		if err == services.ErrConflictNotPending {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.NotFoundResponse(c, "Conflict")
		return
	}

	utils.SuccessResponse(c, conflict)
}

// POST /conflicts/batch-resolve
func (h *ConflictHandler) ResolveBatch(c *gin.Context) {
	var body struct {
		ConflictIDs []uuid.UUID                     `json:"conflict_ids" binding:"required"`
		Request     services.ResolveConflictRequest `json:"resolution"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	result := h.conflictService.ResolveBatchConflicts(c.Request.Context(), body.ConflictIDs, &body.Request)
	utils.SuccessResponse(c, result)
}

// POST /groups/:id/conflicts/scan
func (h *ConflictHandler) ScanGroup(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	detected, err := h.conflictService.ScanGroupForConflicts(c.Request.Context(), groupID)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{"group_id": groupID, "detected": detected})
}
