package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/export"
	"github.com/garyellow/osvita-occupancy/internal/occupancy"
	"github.com/garyellow/osvita-occupancy/internal/scan"
	"github.com/garyellow/osvita-occupancy/internal/snapshot"
	"github.com/garyellow/osvita-occupancy/internal/storage"
)

// Result sources reported by GET /api/occupancy.
const (
	sourceStore   = "store"
	sourceArchive = "archive"
)

type occupancyResponse struct {
	Date     string             `json:"date"`
	Cached   bool               `json:"cached"`
	Source   string             `json:"source,omitempty"`
	ScanID   string             `json:"scan_id,omitempty"`
	StoredAt *time.Time         `json:"stored_at,omitempty"`
	Results  occupancy.Snapshot `json:"results"`
}

type saveOccupancyRequest struct {
	Password string             `json:"password"`
	Date     string             `json:"date"`
	Results  occupancy.Snapshot `json:"results"`
}

// respondError logs err and answers with its user message.
func (a *Application) respondError(c *gin.Context, status int, errType string, err error) {
	a.metrics.RecordHTTPError(errType, "api")
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": apperrors.GetUserMessage(err)})
}

// dateParam parses a required YYYY-MM-DD value and answers 400 when it is
// missing or malformed.
func (a *Application) dateParam(c *gin.Context, value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		a.respondError(c, http.StatusBadRequest, "validation", errors.New("date is required"))
		return "", false
	}
	if _, err := scan.ParseDate(value); err != nil {
		a.respondError(c, http.StatusBadRequest, "validation", apperrors.NewWrapper("api", "date").Wrap(err, "date must be YYYY-MM-DD"))
		return "", false
	}
	return value, true
}

// loadOccupancy reads the live result of date, falling back to the newest
// archived scan when the store has none.
func (a *Application) loadOccupancy(ctx context.Context, date string) (*storage.Occupancy, string, error) {
	rec, err := a.store.GetOccupancy(ctx, date)
	if err == nil {
		return rec, sourceStore, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, "", err
	}
	if a.archiver == nil {
		return nil, "", apperrors.ErrNotFound
	}

	rec, err = a.archiver.Latest(ctx, date)
	if errors.Is(err, snapshot.ErrNotFound) {
		return nil, "", apperrors.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return rec, sourceArchive, nil
}

// getOccupancy handles GET /api/occupancy?date=YYYY-MM-DD. A date with no
// stored result is not an error: it answers cached=false with no rooms.
func (a *Application) getOccupancy(c *gin.Context) {
	date, ok := a.dateParam(c, c.Query("date"))
	if !ok {
		return
	}

	rec, source, err := a.loadOccupancy(c.Request.Context(), date)
	if apperrors.IsNotFound(err) {
		c.JSON(http.StatusOK, occupancyResponse{Date: date, Results: occupancy.Snapshot{}})
		return
	}
	if err != nil {
		a.respondError(c, http.StatusInternalServerError, "store",
			apperrors.NewWrapper("api", "get_occupancy").Wrap(err, "failed to load occupancy"))
		return
	}

	storedAt := rec.StoredAt
	c.JSON(http.StatusOK, occupancyResponse{
		Date:     date,
		Cached:   true,
		Source:   source,
		ScanID:   rec.ScanID,
		StoredAt: &storedAt,
		Results:  rec.Rooms,
	})
}

// postOccupancy handles POST /api/occupancy: a client-side scan result
// replaces the stored one for its date.
func (a *Application) postOccupancy(c *gin.Context) {
	var req saveOccupancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondError(c, http.StatusBadRequest, "validation", errors.New("invalid JSON body"))
		return
	}
	if !a.authorize(c, req.Password) {
		return
	}
	date, ok := a.dateParam(c, req.Date)
	if !ok {
		return
	}
	if req.Results == nil {
		a.respondError(c, http.StatusBadRequest, "validation", errors.New("results are required"))
		return
	}

	rooms := normalizeRooms(req.Results)
	rec := &storage.Occupancy{Date: date, Rooms: rooms}
	if err := a.store.SaveOccupancy(c.Request.Context(), rec, a.cfg.ResultTTL); err != nil {
		a.respondError(c, http.StatusInternalServerError, "store",
			apperrors.NewWrapper("api", "save_occupancy").Wrap(err, "failed to save occupancy"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"date":    date,
		"rooms":   len(rooms),
		"storage": a.store.Backend(),
	})
}

// normalizeRooms drops unnamed rooms, fills missing building tags and
// restores the display order.
func normalizeRooms(in occupancy.Snapshot) occupancy.Snapshot {
	out := make(occupancy.Snapshot, 0, len(in))
	for _, r := range in {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			continue
		}
		if r.Building == "" {
			r.Building = occupancy.BuildingTag(r.Name)
		}
		out = append(out, r)
	}
	occupancy.SortRooms(out)
	return out
}

// exportOccupancy handles GET /api/occupancy/export?date=YYYY-MM-DD.
func (a *Application) exportOccupancy(c *gin.Context) {
	date, ok := a.dateParam(c, c.Query("date"))
	if !ok {
		return
	}

	rec, _, err := a.loadOccupancy(c.Request.Context(), date)
	if apperrors.IsNotFound(err) {
		a.respondError(c, http.StatusNotFound, "not_found", errors.New("no occupancy stored for "+date))
		return
	}
	if err != nil {
		a.respondError(c, http.StatusInternalServerError, "store",
			apperrors.NewWrapper("api", "export").Wrap(err, "failed to load occupancy"))
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, rec.Rooms); err != nil {
		a.respondError(c, http.StatusInternalServerError, "export",
			apperrors.NewWrapper("api", "export").Wrap(err, "failed to build spreadsheet"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(date)+`"`)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}
