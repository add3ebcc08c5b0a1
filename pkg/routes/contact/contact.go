package contact

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/utils"
)

// Resolver is satisfied by *identity.Resolver.
type Resolver interface {
	Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error)
	Lookup(ctx context.Context, id int64) (*models.IdentifyResponse, error)
}

type Handler struct {
	resolver Resolver
}

func NewHandler(resolver Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// Register registers contact routes
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/identify", h.Identify)
	e.GET("/contacts/:id", h.GetContact)
}

// Identify consolidates the posted email and phone number into a contact cluster.
func (h *Handler) Identify(c echo.Context) error {
	req, err := utils.BindRequest[models.IdentifyRequest](c)
	if err != nil {
		return err
	}

	resp, err := h.resolver.Identify(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// GetContact returns the consolidated cluster containing the contact.
func (h *Handler) GetContact(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "contact id must be a positive integer")
	}

	resp, err := h.resolver.Lookup(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}
