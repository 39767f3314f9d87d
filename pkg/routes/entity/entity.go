// Package entity exposes the duplicate discovery and merge endpoints.
package entity

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	auditrepo "github.com/Ramsey-B/fern/internal/repositories/audit"
	entityrepo "github.com/Ramsey-B/fern/internal/repositories/entity"
	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/merge"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/planner"
)

const (
	defaultPage  = 1
	defaultLimit = 20
)

// Handler serves the entity duplicate endpoints.
type Handler struct {
	entities  *entityrepo.Repository
	auditLogs *auditrepo.Repository
	planner   *planner.Planner
	executor  *merge.Executor
	validate  *validator.Validate
	logger    ectologger.Logger
}

// NewHandler creates a new entity handler
func NewHandler(entities *entityrepo.Repository, auditLogs *auditrepo.Repository, p *planner.Planner, executor *merge.Executor, logger ectologger.Logger) *Handler {
	return &Handler{
		entities:  entities,
		auditLogs: auditLogs,
		planner:   p,
		executor:  executor,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Register registers entity routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/similar/by-name", h.GetDuplicateNames)
	g.GET("/similar/by-name/:type", h.GetDuplicateNameGroups)
	g.GET("/by-name/:name", h.GetEntitiesByName)
	g.GET("/:id", h.GetEntity)
	g.GET("/:id/audit", h.GetAuditHistory)
	g.POST("/duplicates/analyze", h.AnalyzeDuplicates)
	g.POST("/resolve-duplicates", h.ResolveDuplicates)
	g.POST("/resolve-duplicates/manual", h.ResolveDuplicates)
}

// GetEntity retrieves one non-deleted entity by id.
func (h *Handler) GetEntity(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	ent, err := h.entities.Get(ctx, id)
	if err != nil {
		return err
	}
	if ent == nil {
		return faults.NewNotFoundError("entity not found", id)
	}

	return c.JSON(http.StatusOK, models.OK(http.StatusOK, "entity", ent))
}

// GetAuditHistory lists the audit entries recorded for an entity, newest
// first. Merged-away entities keep their history.
func (h *Handler) GetAuditHistory(c echo.Context) error {
	ctx := c.Request().Context()

	entries, err := h.auditLogs.ListByEntityID(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OK(http.StatusOK, "audit history", entries))
}

// GetDuplicateNames lists duplicate organization names, unpaginated, as a
// plain array of name strings.
func (h *Handler) GetDuplicateNames(c echo.Context) error {
	ctx := c.Request().Context()

	names, err := h.entities.DuplicateNames(ctx, models.EntityTypeOrganization)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OK(http.StatusOK, "duplicate entity names", names))
}

// GetDuplicateNameGroups lists duplicate-name groups for one entity type
// with pagination.
func (h *Handler) GetDuplicateNameGroups(c echo.Context) error {
	ctx := c.Request().Context()

	entityType, err := strconv.Atoi(c.Param("type"))
	if err != nil {
		return faults.NewValidationErrorf("entity type %q is not a number", c.Param("type"))
	}
	if _, ok := models.RecognizedEntityTypes[entityType]; !ok {
		return faults.NewValidationErrorf("entity type %d is not recognized", entityType)
	}

	page := queryInt(c, "page", defaultPage)
	if page < 1 {
		page = defaultPage
	}
	limit := queryInt(c, "limit", defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	offset := (page - 1) * limit

	groups, total, err := h.entities.DuplicateNameGroups(ctx, entityType, limit, offset)
	if err != nil {
		return err
	}

	payload := models.DuplicateGroupsResponse{
		DuplicateGroups: groups,
		Pagination: models.Pagination{
			Limit:  limit,
			Page:   page,
			Offset: offset,
			Total:  total,
		},
	}

	return c.JSON(http.StatusOK, models.OK(http.StatusOK, "duplicate name groups", payload))
}

// GetEntitiesByName lists the non-deleted entities matching a normalized
// name.
func (h *Handler) GetEntitiesByName(c echo.Context) error {
	ctx := c.Request().Context()

	name := c.Param("name")
	if name == "" {
		return faults.NewValidationError("name is required")
	}

	entities, err := h.entities.FindByName(ctx, name)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OK(http.StatusOK, "entities by name", entities))
}

// AnalyzeDuplicates runs one grouping and planning pass over the people of
// the entities matching name and returns the proposals for review.
func (h *Handler) AnalyzeDuplicates(c echo.Context) error {
	ctx := c.Request().Context()

	name := c.QueryParam("name")
	if name == "" {
		return faults.NewValidationError("name query parameter is required")
	}

	analysis, err := h.planner.Analyze(ctx, name)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OK(http.StatusOK, "duplicate analysis", analysis))
}

// ResolveDuplicates validates and applies a merge request. The manual route
// binds here too: both paths run the identical validator and executor.
func (h *Handler) ResolveDuplicates(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ResolveDuplicatesRequest
	if err := c.Bind(&req); err != nil {
		return faults.NewValidationError("request body is not valid JSON")
	}
	if err := h.validate.Struct(&req); err != nil {
		return faults.NewValidationError(err.Error())
	}

	result, err := h.executor.Apply(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OK(http.StatusOK, "merge applied", result))
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
