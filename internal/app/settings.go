package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/storage"
)

type setLinkRequest struct {
	Password string          `json:"password"`
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
}

type setTimesRequest struct {
	Password string          `json:"password"`
	Times    json.RawMessage `json:"times"`
}

// getLinks handles GET /api/links.
func (a *Application) getLinks(c *gin.Context) {
	links, err := a.store.GetLinks(c.Request.Context())
	if err != nil {
		a.respondError(c, http.StatusInternalServerError, "store",
			apperrors.NewWrapper("api", "get_links").Wrap(err, "failed to load links"))
		return
	}
	if links == nil {
		links = storage.Links{}
	}
	c.JSON(http.StatusOK, links)
}

// setLink handles POST /api/links {password, key, value}. A null value
// removes the key.
func (a *Application) setLink(c *gin.Context) {
	var req setLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondError(c, http.StatusBadRequest, "validation", errors.New("missing body"))
		return
	}
	if !a.authorize(c, req.Password) {
		return
	}

	err := a.store.SetLink(c.Request.Context(), req.Key, req.Value)
	if apperrors.IsInvalidInput(err) {
		a.respondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err != nil {
		a.respondError(c, http.StatusInternalServerError, "store",
			apperrors.NewWrapper("api", "set_link").Wrap(err, "failed to save link"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "storage": a.store.Backend()})
}

// getTimes handles GET /api/times.
func (a *Application) getTimes(c *gin.Context) {
	times, err := a.store.GetTimes(c.Request.Context())
	if err != nil {
		a.respondError(c, http.StatusInternalServerError, "store",
			apperrors.NewWrapper("api", "get_times").Wrap(err, "failed to load times"))
		return
	}
	c.JSON(http.StatusOK, times)
}

// setTimes handles POST /api/times {password, times}.
func (a *Application) setTimes(c *gin.Context) {
	var req setTimesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondError(c, http.StatusBadRequest, "validation", errors.New("missing body"))
		return
	}
	if !a.authorize(c, req.Password) {
		return
	}

	err := a.store.SetTimes(c.Request.Context(), storage.Times(req.Times))
	if apperrors.IsInvalidInput(err) {
		a.respondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err != nil {
		a.respondError(c, http.StatusInternalServerError, "store",
			apperrors.NewWrapper("api", "set_times").Wrap(err, "failed to save times"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "storage": a.store.Backend()})
}
