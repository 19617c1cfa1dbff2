package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/taskpad/pkg/types"
)

// Register wires the record routes on e.
func Register(e *echo.Echo, svc Service, logger *log.Logger) {
	h := &handlers{svc: svc, logger: logger}

	e.GET("/records", h.listRecords)
	e.POST("/records", h.createRecord)
	e.POST("/records/clear-completed", h.clearCompleted)
	e.GET("/records/:id", h.getRecord)
	e.PATCH("/records/:id", h.updateRecord)
	e.DELETE("/records/:id", h.deleteRecord)
	e.POST("/records/:id/move", h.moveRecord)

	e.GET("/stats", h.stats)
	e.GET("/export", h.export)
	e.POST("/import", h.importRecords)

	e.GET("/backups", h.listBackups)
	e.POST("/backups", h.createBackup)
	e.POST("/backups/restore", h.restoreBackup)
}

type handlers struct {
	svc    Service
	logger *log.Logger
}

type createRequest struct {
	Text     string   `json:"text"`
	DueDate  *string  `json:"due_date"`
	Priority *string  `json:"priority"`
	Category *string  `json:"category"`
	Tags     []string `json:"tags"`
	Color    *string  `json:"color"`
	Notes    *string  `json:"notes"`
}

type moveRequest struct {
	Position *int `json:"position"`
}

type restoreRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) listRecords(c echo.Context) error {
	q, err := parseQuery(c)
	if err != nil {
		return h.fail(c, err)
	}
	records, err := h.svc.Query(c.Request().Context(), q)
	if err != nil {
		return h.fail(c, err)
	}
	if records == nil {
		records = []types.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

func (h *handlers) createRecord(c echo.Context) error {
	var req createRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}
	rec, err := h.svc.Create(req.Text, types.Extensions{
		DueDate:  req.DueDate,
		Priority: req.Priority,
		Category: req.Category,
		Tags:     req.Tags,
		Color:    req.Color,
		Notes:    req.Notes,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *handlers) getRecord(c echo.Context) error {
	rec, err := h.svc.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *handlers) updateRecord(c echo.Context) error {
	id := c.Param("id")
	var updates types.Updates
	if err := decodeBody(c, &updates); err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.Update(id, updates); err != nil {
		return h.fail(c, err)
	}
	rec, err := h.svc.Get(id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *handlers) deleteRecord(c echo.Context) error {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) moveRecord(c echo.Context) error {
	var req moveRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}
	if req.Position == nil {
		return h.fail(c, fmt.Errorf("%w: position is required", types.ErrInvalidArgument))
	}
	if err := h.svc.Reorder(c.Param("id"), *req.Position); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) clearCompleted(c echo.Context) error {
	n, err := h.svc.ClearCompleted()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"removed": n})
}

func (h *handlers) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Stats())
}

func (h *handlers) export(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Export())
}

func (h *handlers) importRecords(c echo.Context) error {
	mode, err := types.ParseImportMode(c.QueryParam("mode"))
	if err != nil {
		return h.fail(c, err)
	}
	var records []types.Record
	if err := decodeBody(c, &records); err != nil {
		return h.fail(c, err)
	}
	n, err := h.svc.Import(records, mode)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"added": n})
}

func (h *handlers) listBackups(c echo.Context) error {
	list, err := h.svc.Backups()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *handlers) createBackup(c echo.Context) error {
	path, err := h.svc.Backup()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"path": path})
}

func (h *handlers) restoreBackup(c echo.Context) error {
	var req restoreRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}
	if req.Name == "" {
		return h.fail(c, fmt.Errorf("%w: name is required", types.ErrInvalidArgument))
	}
	// Only files directly inside the backup directory may be restored.
	if !filepath.IsLocal(req.Name) || req.Name != filepath.Base(req.Name) {
		return h.fail(c, fmt.Errorf("%w: %q is not a backup name", types.ErrInvalidArgument, req.Name))
	}
	if err := h.svc.RestoreFromBackup(req.Name); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// fail writes err as a JSON error body with its mapped status.
func (h *handlers) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed")
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, types.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeBody(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", types.ErrInvalidArgument, err)
	}
	return nil
}

func parseQuery(c echo.Context) (types.Query, error) {
	var q types.Query
	if v := c.QueryParam("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, fmt.Errorf("%w: completed=%q", types.ErrInvalidArgument, v)
		}
		q.Completed = &b
	}
	if v := c.QueryParam("category"); v != "" {
		q.Category = &v
	}
	if v := c.QueryParam("priority"); v != "" {
		q.Priority = &v
	}
	q.Tag = c.QueryParam("tag")
	q.Text = c.QueryParam("q")
	q.DueBefore = c.QueryParam("due_before")
	q.DueAfter = c.QueryParam("due_after")

	sort, err := types.ParseSortMode(c.QueryParam("sort"))
	if err != nil {
		return q, err
	}
	q.Sort = sort

	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, fmt.Errorf("%w: limit=%q", types.ErrInvalidArgument, v)
		}
		q.Limit = n
	}
	return q, nil
}
