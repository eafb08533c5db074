package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/garyellow/osvita-occupancy/internal/config"
	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/scan"
)

const wsMaxMessageSize = 1 << 12

type startScanRequest struct {
	Password string `json:"password"`
	Date     string `json:"date"`
}

// wsEnvelope is one websocket message.
type wsEnvelope struct {
	Type string     `json:"type"`
	Data scan.State `json:"data"`
}

// startScan handles POST /api/scan. It answers 202 with the new state, or
// 409 with the running scan's state.
func (a *Application) startScan(c *gin.Context) {
	var req startScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondError(c, http.StatusBadRequest, "validation", errors.New("invalid JSON body"))
		return
	}
	if !a.authorize(c, req.Password) {
		return
	}
	dateStr, ok := a.dateParam(c, req.Date)
	if !ok {
		return
	}
	date, _ := scan.ParseDate(dateStr)

	st, err := a.scans.Start(c.Request.Context(), date)
	if errors.Is(err, apperrors.ErrScanInProgress) {
		a.metrics.RecordHTTPError("conflict", "scan")
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": st})
		return
	}
	if err != nil {
		a.respondError(c, http.StatusInternalServerError, "scan",
			apperrors.NewWrapper("api", "start_scan").Wrap(err, "failed to start scan"))
		return
	}
	c.JSON(http.StatusAccepted, st)
}

// getScan handles GET /api/scan.
func (a *Application) getScan(c *gin.Context) {
	c.JSON(http.StatusOK, a.scans.State())
}

// cancelScan handles DELETE /api/scan. The scan stops at the next chunk
// boundary, so the answer is 202 with the still-running state.
func (a *Application) cancelScan(c *gin.Context) {
	if !a.authorize(c, "") {
		return
	}
	if !a.scans.Cancel() {
		c.JSON(http.StatusConflict, gin.H{"error": "no scan running", "state": a.scans.State()})
		return
	}
	c.JSON(http.StatusAccepted, a.scans.State())
}

func (a *Application) upgrader() *websocket.Upgrader {
	allowed := a.cfg.AllowedOrigin
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowed == "" || allowed == "*" || origin == "" || origin == allowed
		},
	}
}

// scanStream handles GET /api/scan/ws: every state change is pushed as
// {"type":"state","data":...}, starting with the current state.
func (a *Application) scanStream(c *gin.Context) {
	log := a.logger.WithModule("scan_ws")

	conn, err := a.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	})

	// The reader only handles control frames and notices the peer leaving.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates, unsubscribe := a.scans.Subscribe()
	defer unsubscribe()

	ping := time.NewTicker(config.WSPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.WithError(err).Debug("Websocket ping failed")
				return
			}
		case st, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if err := conn.WriteJSON(wsEnvelope{Type: "state", Data: st}); err != nil {
				log.WithError(err).Debug("Websocket write failed")
				return
			}
		}
	}
}
