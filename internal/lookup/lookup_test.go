package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/osvita-occupancy/internal/respcache"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

type fakeForwarder struct {
	mu      sync.Mutex
	calls   []string
	payload map[string]string
	status  int
	err     error
}

func (f *fakeForwarder) Forward(_ context.Context, action string, query url.Values) (int, json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, action+"?"+query.Encode())
	f.mu.Unlock()
	if f.err != nil {
		return 0, nil, f.err
	}
	status := f.status
	if status == 0 {
		status = 200
	}
	return status, json.RawMessage(f.payload[action]), nil
}

func newService(f *fakeForwarder) *Service {
	return New(f, respcache.NewFetcher(respcache.New(respcache.Options{Capacity: 10})))
}

func TestGet_CachesByNormalizedKey(t *testing.T) {
	t.Parallel()
	f := &fakeForwarder{payload: map[string]string{"GetScheduleDataX": `[]`}}
	s := newService(f)
	ctx := context.Background()

	_, hit, err := s.Get(ctx, "GetScheduleDataX", url.Values{"aStudyGroupID": {`"G1"`}, "callback": {"jsonp1"}, "_": {"1"}})
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = s.Get(ctx, "GetScheduleDataX", url.Values{"aStudyGroupID": {`"G1"`}, "callback": {"jsonp2"}, "_": {"2"}})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, f.calls, 1)
}

func TestGet_NonSuccessNotCached(t *testing.T) {
	t.Parallel()
	f := &fakeForwarder{status: 404, payload: map[string]string{}}
	s := newService(f)

	for range 2 {
		e, hit, err := s.Get(context.Background(), "GetEmployees", url.Values{})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 404, e.StatusCode)
	}
	assert.Len(t, f.calls, 2)
}

func TestFilters(t *testing.T) {
	t.Parallel()
	f := &fakeForwarder{payload: map[string]string{
		upstream.ActionFilters: `{"faculties":[{"Key":"1","Value":"ФІТ"}],"educForms":[{"Key":1,"Value":"Денна"}],"courses":[{"Key":"1","Value":"1"}]}`,
	}}
	s := newService(f)

	got, err := s.Filters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ФІТ", got.Faculties[0].Value)
	assert.Equal(t, "1", got.EducForms[0].Key)
	assert.False(t, got.Empty())

	_, err = s.Filters(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.calls, 1, "second call is served from cache")
}

func TestChairs_QuotesFaculty(t *testing.T) {
	t.Parallel()
	f := &fakeForwarder{payload: map[string]string{
		upstream.ActionChairs: `{"chairs":[{"Key":"10","Value":"Кафедра"}]}`,
	}}
	s := newService(f)

	chairs, err := s.Chairs(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, chairs, 1)
	assert.Equal(t, "Кафедра", chairs[0].Value)
	assert.Equal(t, []string{"GetEmployeeChairs?aFacultyID=%227%22"}, f.calls)
}

func TestFilters_Error(t *testing.T) {
	t.Parallel()
	s := newService(&fakeForwarder{err: errors.New("down")})

	_, err := s.Filters(context.Background())
	assert.Error(t, err)
}

func TestEmployees(t *testing.T) {
	t.Parallel()
	f := &fakeForwarder{payload: map[string]string{
		upstream.ActionEmployees: `[{"Key":31,"Value":"Петренко П.П."}]`,
	}}
	s := newService(f)

	emps, err := s.Employees(context.Background(), "7", "10")
	require.NoError(t, err)
	assert.Equal(t, []upstream.Option{{Key: "31", Value: "Петренко П.П."}}, emps)
	assert.Equal(t, []string{"GetEmployees?aChairID=%2210%22&aFacultyID=%227%22"}, f.calls)
}

func TestEmployees_NonArrayIsEmpty(t *testing.T) {
	t.Parallel()
	s := newService(&fakeForwarder{payload: map[string]string{upstream.ActionEmployees: `{"error":"none"}`}})

	emps, err := s.Employees(context.Background(), "7", "10")
	require.NoError(t, err)
	assert.Empty(t, emps)
}

func TestTeacherSchedule(t *testing.T) {
	t.Parallel()
	f := &fakeForwarder{payload: map[string]string{
		upstream.ActionTeacherSchedule: `[{"cabinet":"2-204","study_time":"1 пара","study_group":"КН-21","employee_short":"Петренко П.П."}]`,
	}}
	s := newService(f)
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	lessons, err := s.TeacherSchedule(context.Background(), "31", day, day)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, "2-204", lessons[0].Room)
	assert.Equal(t, "Петренко П.П.", lessons[0].Teacher())
	assert.Equal(t,
		[]string{"GetScheduleDataEmp?aEmployeeID=%2231%22&aEndDate=%2211.03.2024%22&aStartDate=%2211.03.2024%22&aStudyTypeID="},
		f.calls)

	_, err = s.TeacherSchedule(context.Background(), "31", day, day)
	require.NoError(t, err)
	assert.Len(t, f.calls, 1, "second call is served from cache")
}

func TestTeacherSchedule_NullIsEmpty(t *testing.T) {
	t.Parallel()
	s := newService(&fakeForwarder{payload: map[string]string{upstream.ActionTeacherSchedule: `null`}})

	lessons, err := s.TeacherSchedule(context.Background(), "31", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, lessons)
}
