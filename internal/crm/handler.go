package crm

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Hello-Vince/crm-system/internal/identity"
	"github.com/Hello-Vince/crm-system/pkg/response"
)

// CustomerHandler handles customer HTTP requests
type CustomerHandler struct {
	service *CustomerService
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(service *CustomerService) *CustomerHandler {
	return &CustomerHandler{service: service}
}

// Create handles customer creation
// POST /api/v1/customers
func (h *CustomerHandler) Create(c *gin.Context) {
	principal, ok := identity.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Unauthorized(""))
		return
	}

	var req CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
		return
	}

	customer, err := h.service.Create(c.Request.Context(), principal, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrCustomerNameRequired):
			c.JSON(http.StatusBadRequest, response.BadRequest("Customer name is required"))
		case errors.Is(err, ErrCompanyRequired):
			c.JSON(http.StatusForbidden, response.Error(response.ErrCodeCompanyRequired, "Caller has no company"))
		default:
			c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
		}
		return
	}

	c.JSON(http.StatusCreated, response.Success(customer))
}

// GetByID handles retrieving a customer by ID
// GET /api/v1/customers/:id
func (h *CustomerHandler) GetByID(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, response.BadRequest("Customer ID is required"))
		return
	}

	principal, ok := identity.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Unauthorized(""))
		return
	}

	customer, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
		return
	}
	if customer == nil || !h.service.Visible(principal, customer) {
		// Invisible and nonexistent look the same to the caller.
		c.JSON(http.StatusNotFound, response.NotFound("Customer not found"))
		return
	}

	c.JSON(http.StatusOK, response.Success(customer))
}

// List handles listing customers within the caller's visibility scope
// GET /api/v1/customers
func (h *CustomerHandler) List(c *gin.Context) {
	principal, ok := identity.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Unauthorized(""))
		return
	}

	customers, err := h.service.ListVisible(c.Request.Context(), principal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(customers))
}

// coordinatesRequest is the internal write-back body from the geocoding worker.
type coordinatesRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UpdateCoordinates handles the geocoding write-back
// PATCH /internal/customers/:id/coordinates
func (h *CustomerHandler) UpdateCoordinates(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, response.BadRequest("Customer ID is required"))
		return
	}

	var req coordinatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
		return
	}

	if err := h.service.UpdateCoordinates(c.Request.Context(), id, req.Latitude, req.Longitude); err != nil {
		if errors.Is(err, ErrUnknownCustomer) {
			c.JSON(http.StatusNotFound, response.NotFound("Customer not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{
		"id":        id,
		"latitude":  req.Latitude,
		"longitude": req.Longitude,
	}))
}
