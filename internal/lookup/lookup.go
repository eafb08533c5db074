// Package lookup serves ordinary upstream lookups through the response
// cache. Bulk scan fetches do not come through here.
package lookup

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/garyellow/osvita-occupancy/internal/respcache"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

// Forwarder performs a pass-through upstream call.
type Forwarder interface {
	Forward(ctx context.Context, action string, query url.Values) (int, json.RawMessage, error)
}

// Service answers cached lookups.
type Service struct {
	upstream Forwarder
	fetcher  *respcache.Fetcher
}

// New creates a Service.
func New(up Forwarder, fetcher *respcache.Fetcher) *Service {
	return &Service{upstream: up, fetcher: fetcher}
}

// Cache returns the backing cache.
func (s *Service) Cache() *respcache.Cache {
	return s.fetcher.Cache()
}

// Get returns the payload of action for query, from cache when fresh.
func (s *Service) Get(ctx context.Context, action string, query url.Values) (*respcache.Entry, bool, error) {
	key := respcache.Normalize(action, query)
	return s.fetcher.Get(ctx, key, respcache.CategoryFor(action), func(ctx context.Context) (int, []byte, error) {
		status, payload, err := s.upstream.Forward(ctx, action, query)
		return status, payload, err
	})
}

// Filters returns the faculty, education form and course lists.
func (s *Service) Filters(ctx context.Context) (upstream.Filters, error) {
	e, _, err := s.Get(ctx, upstream.ActionFilters, url.Values{})
	if err != nil {
		return upstream.Filters{}, err
	}
	return upstream.DecodeFilters(e.Payload)
}

// Chairs returns the departments of a faculty.
func (s *Service) Chairs(ctx context.Context, facultyID string) ([]upstream.Option, error) {
	e, _, err := s.Get(ctx, upstream.ActionChairs, upstream.Params{"aFacultyID": facultyID}.Values())
	if err != nil {
		return nil, err
	}
	return upstream.DecodeChairs(e.Payload)
}

// Employees returns the teachers of a chair.
func (s *Service) Employees(ctx context.Context, facultyID, chairID string) ([]upstream.Option, error) {
	e, _, err := s.Get(ctx, upstream.ActionEmployees, upstream.EmployeesParams(facultyID, chairID).Values())
	if err != nil {
		return nil, err
	}
	return upstream.DecodeEmployees(e.Payload), nil
}

// TeacherSchedule returns the lessons of one employee between from and to
// inclusive.
func (s *Service) TeacherSchedule(ctx context.Context, employeeID string, from, to time.Time) ([]upstream.Lesson, error) {
	e, _, err := s.Get(ctx, upstream.ActionTeacherSchedule, upstream.TeacherScheduleParams(employeeID, from, to).Values())
	if err != nil {
		return nil, err
	}
	return upstream.DecodeLessons(upstream.ActionTeacherSchedule, e.Payload)
}
