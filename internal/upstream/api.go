package upstream

import (
	"context"
	"encoding/json"
	"time"
)

// do coalesces identical concurrent calls into one upstream request.
func (c *Client) do(ctx context.Context, action string, params Params) (json.RawMessage, error) {
	key := action + "?" + canonicalParams(params)
	v, err, shared := c.flight.Do(key, func() (any, error) {
		_, payload, err := c.Call(ctx, action, params)
		return payload, err
	})
	if shared {
		c.metrics.RecordSingleflightDedup(action)
	}
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func canonicalParams(params Params) string {
	b, _ := json.Marshal(params) // map keys are sorted by encoding/json
	return string(b)
}

// StudyGroups lists the groups of one faculty/form/course combination.
func (c *Client) StudyGroups(ctx context.Context, facultyID, form, course string) ([]Option, error) {
	payload, err := c.do(ctx, ActionStudyGroups, Params{
		"aFacultyID":     facultyID,
		"aEducationForm": form,
		"aCourse":        course,
	})
	if err != nil {
		return nil, err
	}
	out, err := decodeInto[studyGroupsPayload](ActionStudyGroups, payload)
	return out.StudyGroups, err
}

// GroupSchedule fetches the lessons of one study group between from and to
// inclusive.
func (c *Client) GroupSchedule(ctx context.Context, groupID string, from, to time.Time) ([]Lesson, error) {
	payload, err := c.do(ctx, ActionGroupSchedule, GroupScheduleParams(groupID, from, to))
	if err != nil {
		return nil, err
	}
	return decodeLessons(ActionGroupSchedule, payload)
}

// GroupScheduleParams are the GetScheduleDataX parameters for one group.
func GroupScheduleParams(groupID string, from, to time.Time) Params {
	return Params{
		"aStudyGroupID": groupID,
		"aStartDate":    FormatDate(from),
		"aEndDate":      FormatDate(to),
		"aStudyTypeID":  "",
	}
}

// TeacherScheduleParams are the GetScheduleDataEmp parameters for one
// employee.
func TeacherScheduleParams(employeeID string, from, to time.Time) Params {
	return Params{
		"aEmployeeID":  employeeID,
		"aStartDate":   FormatDate(from),
		"aEndDate":     FormatDate(to),
		"aStudyTypeID": "",
	}
}

// EmployeesParams are the GetEmployees parameters for one chair.
func EmployeesParams(facultyID, chairID string) Params {
	return Params{"aFacultyID": facultyID, "aChairID": chairID}
}

// decodeLessons treats null as an empty schedule.
func decodeLessons(action string, payload json.RawMessage) ([]Lesson, error) {
	if isFalsy(payload) {
		return nil, nil
	}
	return decodeInto[[]Lesson](action, payload)
}

// DecodeFilters decodes an unwrapped GetStudentScheduleFiltersData payload.
func DecodeFilters(payload json.RawMessage) (Filters, error) {
	return decodeInto[Filters](ActionFilters, payload)
}

// DecodeChairs decodes an unwrapped GetEmployeeChairs payload.
func DecodeChairs(payload json.RawMessage) ([]Option, error) {
	out, err := decodeInto[chairsPayload](ActionChairs, payload)
	return out.Chairs, err
}

// DecodeEmployees decodes an unwrapped GetEmployees payload. Anything but
// an array means the chair has no employees.
func DecodeEmployees(payload json.RawMessage) []Option {
	if isFalsy(payload) {
		return nil
	}
	var list []Option
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil
	}
	return list
}

// DecodeLessons decodes an unwrapped schedule payload of action.
func DecodeLessons(action string, payload json.RawMessage) ([]Lesson, error) {
	return decodeLessons(action, payload)
}
