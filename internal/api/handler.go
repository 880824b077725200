package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/labworks/lis/internal/core"
	"github.com/labworks/lis/internal/platform/auth"
	"github.com/labworks/lis/internal/platform/fhir"
)

// Handler serves the REST surface for every resource type the engine knows
// about. Routes are registered once per type from the schema registry, so a
// new resource only needs a schema, not a new handler.
type Handler struct {
	engine *core.Engine
	pool   *pgxpool.Pool
}

// NewHandler builds the handler. pool may be nil when the server runs on the
// in-memory store; the health check then reports liveness only.
func NewHandler(engine *core.Engine, pool *pgxpool.Pool) *Handler {
	return &Handler{engine: engine, pool: pool}
}

// RegisterRoutes wires the resource endpoints behind authn. The health and
// metadata endpoints stay open.
func (h *Handler) RegisterRoutes(e *echo.Echo, authn echo.MiddlewareFunc) {
	e.GET("/healthz", h.Health)
	e.GET("/fhir/metadata", h.Metadata)

	fhirGroup := e.Group("/fhir", authn)

	read := fhirGroup.Group("", auth.RequireRole("admin", "physician", "nurse", "lab_tech"))
	write := fhirGroup.Group("", auth.RequireRole("admin", "physician", "lab_tech"))

	for _, resourceType := range h.engine.ResourceTypes() {
		rt := resourceType
		read.GET("/"+rt, func(c echo.Context) error { return h.Search(c, rt) })
		read.POST("/"+rt+"/_search", func(c echo.Context) error { return h.SearchPost(c, rt) })
		read.GET("/"+rt+"/:id", func(c echo.Context) error { return h.Get(c, rt) })
		write.POST("/"+rt, func(c echo.Context) error { return h.Create(c, rt) })
		write.PUT("/"+rt+"/:id", func(c echo.Context) error { return h.Update(c, rt) })
		write.DELETE("/"+rt+"/:id", func(c echo.Context) error { return h.Delete(c, rt) })
	}
}

// Health reports liveness, plus database reachability when a pool is
// configured.
func (h *Handler) Health(c echo.Context) error {
	if h.pool != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": "unreachable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Metadata returns a minimal CapabilityStatement listing the supported
// resource types and interactions.
func (h *Handler) Metadata(c echo.Context) error {
	types := h.engine.ResourceTypes()
	resources := make([]map[string]interface{}, 0, len(types))
	for _, rt := range types {
		resources = append(resources, map[string]interface{}{
			"type": rt,
			"interaction": []map[string]string{
				{"code": "read"},
				{"code": "create"},
				{"code": "update"},
				{"code": "delete"},
				{"code": "search-type"},
			},
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"date":         time.Now().UTC().Format(time.RFC3339),
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"format":       []string{"json"},
		"rest": []map[string]interface{}{
			{"mode": "server", "resource": resources},
		},
	})
}

func (h *Handler) Create(c echo.Context, resourceType string) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("failed to read request body"))
	}
	rec, err := h.engine.Create(c.Request().Context(), resourceType, body)
	if err != nil {
		return writeError(c, err)
	}
	doc, err := core.DecorateDocument(rec)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	setVersionHeaders(c, rec)
	c.Response().Header().Set("Location", "/fhir/"+resourceType+"/"+rec.ID)
	return c.JSONBlob(http.StatusCreated, doc)
}

func (h *Handler) Get(c echo.Context, resourceType string) error {
	id := c.Param("id")
	rec, err := h.engine.GetByID(c.Request().Context(), resourceType, id, true)
	if err != nil {
		return writeError(c, err)
	}
	if rec.IsDeleted {
		// Admins may read a deleted record for audit with _deleted=true;
		// everyone else gets 410.
		if c.QueryParam("_deleted") != "true" || !auth.HasRole(c, "admin") {
			return c.JSON(http.StatusGone, fhir.GoneOutcome(resourceType, id))
		}
	}
	doc, err := core.DecorateDocument(rec)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	setVersionHeaders(c, rec)
	return c.JSONBlob(http.StatusOK, doc)
}

func (h *Handler) Update(c echo.Context, resourceType string) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("failed to read request body"))
	}
	rec, err := h.engine.Update(c.Request().Context(), resourceType, c.Param("id"), body)
	if err != nil {
		return writeError(c, err)
	}
	doc, err := core.DecorateDocument(rec)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	setVersionHeaders(c, rec)
	return c.JSONBlob(http.StatusOK, doc)
}

func (h *Handler) Delete(c echo.Context, resourceType string) error {
	if err := h.engine.Delete(c.Request().Context(), resourceType, c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Search(c echo.Context, resourceType string) error {
	return h.search(c, resourceType, queryMap(c))
}

// SearchPost accepts search parameters as a form body, the POST _search
// alternative for callers who keep identifiers out of URLs.
func (h *Handler) SearchPost(c echo.Context, resourceType string) error {
	params := queryMap(c)
	form, err := c.FormParams()
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid form body"))
	}
	for name, values := range form {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	return h.search(c, resourceType, params)
}

func (h *Handler) search(c echo.Context, resourceType string, params map[string]string) error {
	bundle, err := h.engine.Search(c.Request().Context(), resourceType, params)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bundle)
}

func queryMap(c echo.Context) map[string]string {
	params := make(map[string]string)
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	return params
}

func setVersionHeaders(c echo.Context, rec *core.Record) {
	c.Response().Header().Set("ETag", fmt.Sprintf(`W/"%d"`, rec.VersionID))
	c.Response().Header().Set("Last-Modified", rec.LastUpdated.UTC().Format(http.TimeFormat))
}

// writeError maps engine errors onto HTTP statuses with an OperationOutcome
// body. Unknown errors surface as 500 without leaking internals.
func writeError(c echo.Context, err error) error {
	var validationErr *core.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(validationErr.Error()))
	}
	var refErr *core.ReferenceError
	if errors.As(err, &refErr) {
		return c.JSON(http.StatusUnprocessableEntity, fhir.ErrorOutcome(refErr.Error()))
	}
	var notFoundErr *core.NotFoundError
	if errors.As(err, &notFoundErr) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(notFoundErr.ResourceType, notFoundErr.ID))
	}
	return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("internal server error"))
}
