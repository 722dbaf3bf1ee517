package identity

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Hello-Vince/crm-system/pkg/middleware"
	"github.com/Hello-Vince/crm-system/pkg/response"
)

// PrincipalFromContext builds the principal from the claims the JWT
// middleware injected.
func PrincipalFromContext(c *gin.Context) (Principal, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		return Principal{}, false
	}
	role, _ := middleware.GetRole(c)
	companyID, _ := middleware.GetCompanyID(c)
	return Principal{
		UserID:    userID,
		Role:      Role(role),
		CompanyID: companyID,
	}, true
}

// CompanyHandler handles company management HTTP requests
type CompanyHandler struct {
	service  *CompanyService
	resolver *Resolver
}

// NewCompanyHandler creates a new CompanyHandler
func NewCompanyHandler(service *CompanyService, resolver *Resolver) *CompanyHandler {
	return &CompanyHandler{service: service, resolver: resolver}
}

// Create handles company creation
// POST /api/v1/companies
func (h *CompanyHandler) Create(c *gin.Context) {
	var req CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
		return
	}

	company, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrCompanyNameRequired):
			c.JSON(http.StatusBadRequest, response.BadRequest("Company name is required"))
		case errors.Is(err, ErrParentNotFound):
			c.JSON(http.StatusUnprocessableEntity, response.Error(response.ErrCodeUnprocessableEntity, "Parent company not found"))
		default:
			c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
		}
		return
	}

	c.JSON(http.StatusCreated, response.Success(company))
}

// SetParent handles re-parenting a company
// PATCH /api/v1/companies/:id/parent
func (h *CompanyHandler) SetParent(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, response.BadRequest("Company ID is required"))
		return
	}

	var req struct {
		ParentID string `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
		return
	}

	if err := h.service.SetParent(c.Request.Context(), id, req.ParentID); err != nil {
		switch {
		case errors.Is(err, ErrCycleDetected):
			c.JSON(http.StatusUnprocessableEntity, response.Error(response.ErrCodeCycleDetected, "Parent link would create a cycle"))
		case errors.Is(err, ErrUnknownCompany):
			c.JSON(http.StatusNotFound, response.NotFound("Company not found"))
		default:
			c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{"id": id, "parent_id": req.ParentID}))
}

// GetByID handles retrieving a company by ID
// GET /api/v1/companies/:id
func (h *CompanyHandler) GetByID(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, response.BadRequest("Company ID is required"))
		return
	}

	principal, ok := PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Unauthorized(""))
		return
	}
	if !h.resolver.Resolve(principal).Contains(id) {
		// Invisible and nonexistent look the same to the caller.
		c.JSON(http.StatusNotFound, response.NotFound("Company not found"))
		return
	}

	company, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
		return
	}
	if company == nil {
		c.JSON(http.StatusNotFound, response.NotFound("Company not found"))
		return
	}

	c.JSON(http.StatusOK, response.Success(company))
}

// List handles listing companies within the caller's visibility scope
// GET /api/v1/companies
func (h *CompanyHandler) List(c *gin.Context) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Unauthorized(""))
		return
	}

	companies, err := h.service.ListVisible(c.Request.Context(), h.resolver, principal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(companies))
}
