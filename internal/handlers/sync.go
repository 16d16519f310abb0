// internal/handlers/sync.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/services"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

type SyncHandler struct {
	syncService  *services.SyncService
	storeService *services.StoreService
}

func NewSyncHandler(syncService *services.SyncService, storeService *services.StoreService) *SyncHandler {
	return &SyncHandler{
		syncService:  syncService,
		storeService: storeService,
	}
}

// POST /sync/operations
func (h *SyncHandler) InitiateSync(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.InitiateSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if req.SourceStoreID != nil {
		allowed, err := h.storeService.HasPermission(*req.SourceStoreID, userID, "sync:initiate")
		if err != nil {
			utils.InternalErrorResponse(c, err.Error())
			return
		}
		if !allowed {
			utils.ForbiddenResponse(c, "Missing sync:initiate permission")
			return
		}
	}

	operation, err := h.syncService.InitiateSyncOperation(userID, &req)
	if err != nil {
		switch err {
		case services.ErrQueueFull:
			utils.ErrorResponse(c, 503, "QUEUE_FULL", err.Error(), nil)
		case services.ErrNoSyncTargets:
			utils.ConflictResponse(c, err.Error())
		default:
			utils.ServiceErrorResponse(c, err)
		}
		return
	}

	utils.AcceptedResponse(c, operation)
}

// GET /sync/operations/:id
func (h *SyncHandler) GetOperationStatus(c *gin.Context) {
	operationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid operation ID", nil)
		return
	}

	snapshot, err := h.syncService.GetSyncOperationStatus(c.Request.Context(), operationID)
	if err != nil {
		utils.NotFoundResponse(c, "Sync operation")
		return
	}

	utils.SuccessResponse(c, snapshot)
}

// GET /sync/operations
func (h *SyncHandler) ListOperations(c *gin.Context) {
	groupID, err := uuid.Parse(c.Query("group_id"))
	if err != nil {
		utils.BadRequestResponse(c, "group_id query parameter required", nil)
		return
	}

	params := utils.GetPaginationParams(c)
	status := models.OperationStatus(c.Query("status"))

	operations, total, err := h.syncService.ListOperations(groupID, status, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(operations, total, params))
}

// POST /sync/operations/:id/cancel
func (h *SyncHandler) CancelOperation(c *gin.Context) {
	operationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid operation ID", nil)
		return
	}

	if err := h.syncService.CancelOperation(operationID); err != nil {
		if err == services.ErrOperationTerminal {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.NotFoundResponse(c, "Sync operation")
		return
	}

	utils.SuccessResponse(c, gin.H{"operation_id": operationID, "cancelled": true})
}
