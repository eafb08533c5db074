package app

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/osvita-occupancy/internal/directory"
	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/scan"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

const maxSearchResults = 50

// actionPattern limits pass-through calls to widget methods.
var actionPattern = regexp.MustCompile(`^Get[A-Za-z]+$`)

// scheduleLookup handles GET /api/schedule/:action, a cached pass-through
// to the upstream widget. The body is the unwrapped JSON payload.
func (a *Application) scheduleLookup(c *gin.Context) {
	action := c.Param("action")
	if !actionPattern.MatchString(action) {
		a.respondError(c, http.StatusNotFound, "not_found", errors.New("endpoint not found"))
		return
	}

	entry, hit, err := a.lookup.Get(c.Request.Context(), action, c.Request.URL.Query())
	if err != nil {
		a.respondError(c, upstreamStatus(err), "upstream",
			apperrors.NewWrapper("api", "schedule").Wrap(err, "Proxy request failed"))
		return
	}

	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Data(entry.StatusCode, "application/json; charset=utf-8", entry.Payload)
}

// upstreamStatus passes upstream 4xx answers through and maps everything
// else to 502.
func upstreamStatus(err error) int {
	var ue *apperrors.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode >= 400 && ue.StatusCode < 500 {
		return ue.StatusCode
	}
	return http.StatusBadGateway
}

// teacherLessons handles GET /api/teachers/:id/lessons?date=, the decoded
// schedule of one teacher for a single day.
func (a *Application) teacherLessons(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	date, ok := a.dateParam(c, c.Query("date"))
	if !ok {
		return
	}
	day, _ := scan.ParseDate(date)

	lessons, err := a.lookup.TeacherSchedule(c.Request.Context(), id, day, day)
	if err != nil {
		a.respondError(c, upstreamStatus(err), "upstream",
			apperrors.NewWrapper("api", "teacher_lessons").Wrap(err, "failed to load teacher schedule"))
		return
	}
	if lessons == nil {
		lessons = []upstream.Lesson{}
	}
	c.JSON(http.StatusOK, gin.H{"teacher_id": id, "date": date, "lessons": lessons})
}

// search handles GET /api/search?q=, matching groups discovered by the
// last scan and teachers indexed at warmup.
func (a *Application) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if utf8.RuneCountInString(q) < directory.MinQueryLength {
		a.respondError(c, http.StatusBadRequest, "validation", errors.New("query must be at least 2 characters"))
		return
	}
	c.JSON(http.StatusOK, a.index.Search(q, maxSearchResults))
}
