// internal/handlers/store.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/services"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

type StoreHandler struct {
	storeService *services.StoreService
}

func NewStoreHandler(storeService *services.StoreService) *StoreHandler {
	return &StoreHandler{storeService: storeService}
}

// POST /stores
func (h *StoreHandler) ConnectStore(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.ConnectStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	store, err := h.storeService.ConnectStore(c.Request.Context(), userID, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, store)
}

// GET /stores
func (h *StoreHandler) ListStores(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	stores, total, err := h.storeService.ListStores(userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(stores, total, params))
}

// GET /stores/:id
func (h *StoreHandler) GetStore(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid store ID", nil)
		return
	}

	store, err := h.storeService.GetStore(storeID)
	if err != nil {
		utils.NotFoundResponse(c, "Store")
		return
	}

	utils.SuccessResponse(c, store)
}

// POST /stores/:id/validate
func (h *StoreHandler) ValidateStore(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid store ID", nil)
		return
	}

	healthy, err := h.storeService.ValidateStoreConnection(c.Request.Context(), storeID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"store_id": storeID, "healthy": healthy})
}

// POST /groups
func (h *StoreHandler) CreateGroup(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateStoreGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	group, err := h.storeService.CreateStoreGroup(userID, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, group)
}

// GET /groups/:id
func (h *StoreHandler) GetGroup(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	group, err := h.storeService.GetStoreGroup(groupID)
	if err != nil {
		utils.NotFoundResponse(c, "Store group")
		return
	}

	utils.SuccessResponse(c, group)
}

// PUT /groups/:id
func (h *StoreHandler) UpdateGroup(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	var req services.UpdateStoreGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	group, err := h.storeService.UpdateStoreGroup(groupID, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, group)
}

// POST /groups/:id/stores/:store_id
func (h *StoreHandler) AddStoreToGroup(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}
	storeID, err := uuid.Parse(c.Param("store_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid store ID", nil)
		return
	}

	asMaster, _ := strconv.ParseBool(c.Query("as_master"))

	store, err := h.storeService.AddStoreToGroup(groupID, storeID, asMaster)
	if err != nil {
		switch err {
		case services.ErrGroupCapacityReached, services.ErrStoreAlreadyGrouped:
			utils.ConflictResponse(c, err.Error())
		default:
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	utils.SuccessResponse(c, store)
}

// DELETE /groups/:id/stores/:store_id
func (h *StoreHandler) RemoveStoreFromGroup(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}
	storeID, err := uuid.Parse(c.Param("store_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid store ID", nil)
		return
	}

	if err := h.storeService.RemoveStoreFromGroup(groupID, storeID); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{"removed": storeID})
}

// PUT /groups/:id/master/:store_id
func (h *StoreHandler) SetMasterStore(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}
	storeID, err := uuid.Parse(c.Param("store_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid store ID", nil)
		return
	}

	if err := h.storeService.SetMasterStore(groupID, storeID); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{"group_id": groupID, "master_store_id": storeID})
}

// POST /relationships
func (h *StoreHandler) CreateRelationship(c *gin.Context) {
	var req services.CreateRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	relationship, err := h.storeService.CreateStoreRelationship(&req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, relationship)
}

// GET /stores/:id/relationships
func (h *StoreHandler) ListRelationships(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid store ID", nil)
		return
	}

	relationships, err := h.storeService.ListStoreRelationships(storeID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, relationships)
}

// POST /access
func (h *StoreHandler) GrantAccess(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.GrantAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	allowed, err := h.storeService.HasPermission(req.StoreID, userID, "access:grant")
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if !allowed {
		utils.ForbiddenResponse(c, "Missing access:grant permission")
		return
	}

	access, err := h.storeService.GrantStoreAccess(userID, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, access)
}

// DELETE /access/:store_id/:user_id
func (h *StoreHandler) RevokeAccess(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("store_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid store ID", nil)
		return
	}
	targetUserID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return
	}

	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	allowed, err := h.storeService.HasPermission(storeID, userID, "access:grant")
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if !allowed {
		utils.ForbiddenResponse(c, "Missing access:grant permission")
		return
	}

	if err := h.storeService.RevokeStoreAccess(storeID, targetUserID); err != nil {
		utils.NotFoundResponse(c, "Access grant")
		return
	}

	utils.SuccessResponse(c, gin.H{"revoked": targetUserID})
}
