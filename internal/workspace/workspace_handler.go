package workspace

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"workspace-service/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes maps the registry CRUD surface under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	workspaces := r.Group("/workspaces")
	{
		workspaces.GET("", h.ListWorkspaces)
		workspaces.POST("", h.CreateWorkspace)
		workspaces.GET("/:id", h.GetWorkspace)
		workspaces.PUT("/:id", h.UpdateWorkspace)
		workspaces.DELETE("/:id", h.DeleteWorkspace)

		workspaces.GET("/:id/resources", h.ListResources)
		workspaces.POST("/:id/resources", h.CreateResource)
	}
	resources := r.Group("/resources")
	{
		resources.PUT("/:id", h.UpdateResource)
		resources.DELETE("/:id", h.DeleteResource)
	}
}

func (h *Handler) ListWorkspaces(c *gin.Context) {
	ownerID := c.Query("userId")
	if ownerID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, "userId parameter is required")
		return
	}

	workspaces, err := h.service.ListWorkspaces(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.OK(c, workspaces)
}

func (h *Handler) CreateWorkspace(c *gin.Context) {
	ownerID := c.Query("userId")
	if ownerID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, "userId parameter is required")
		return
	}

	var req CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, err.Error())
		return
	}

	ws, err := h.service.CreateWorkspace(c.Request.Context(), ownerID, &req)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.Created(c, ws)
}

func (h *Handler) GetWorkspace(c *gin.Context) {
	ws, err := h.service.GetWorkspace(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		return
	}
	response.OK(c, ws)
}

func (h *Handler) UpdateWorkspace(c *gin.Context) {
	var req UpdateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, err.Error())
		return
	}

	ws, err := h.service.UpdateWorkspace(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.OK(c, ws)
}

func (h *Handler) DeleteWorkspace(c *gin.Context) {
	if err := h.service.DeleteWorkspace(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.OK(c, nil)
}

func (h *Handler) ListResources(c *gin.Context) {
	resources, err := h.service.ListResources(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.OK(c, resources)
}

func (h *Handler) CreateResource(c *gin.Context) {
	var req CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, err.Error())
		return
	}
	if !req.Type.IsValid() {
		response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, "invalid resource type")
		return
	}

	res, err := h.service.CreateResource(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.Created(c, res)
}

func (h *Handler) UpdateResource(c *gin.Context) {
	var req UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, err.Error())
		return
	}

	res, err := h.service.UpdateResource(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.OK(c, res)
}

func (h *Handler) DeleteResource(c *gin.Context) {
	if err := h.service.DeleteResource(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.OK(c, nil)
}
