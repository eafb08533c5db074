package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Action names understood by the schedule widget service.
const (
	ActionFilters         = "GetStudentScheduleFiltersData"
	ActionStudyGroups     = "GetStudyGroups"
	ActionGroupSchedule   = "GetScheduleDataX"
	ActionTeacherSchedule = "GetScheduleDataEmp"
	ActionChairs          = "GetEmployeeChairs"
	ActionEmployees       = "GetEmployees"
)

// DateLayout is the upstream date format.
const DateLayout = "02.01.2006"

// FormatDate renders t as DD.MM.YYYY.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Option is a key/label pair used by every upstream list.
type Option struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// UnmarshalJSON accepts keys sent either as strings or as numbers.
func (o *Option) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key   json.RawMessage `json:"Key"`
		Value json.RawMessage `json:"Value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Key = scalarString(raw.Key)
	o.Value = scalarString(raw.Value)
	return nil
}

func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}

// Filters is the reference data needed to enumerate study groups.
type Filters struct {
	Faculties []Option `json:"faculties"`
	EducForms []Option `json:"educForms"`
	Courses   []Option `json:"courses"`
}

// Empty reports whether any of the three lists is missing.
func (f Filters) Empty() bool {
	return len(f.Faculties) == 0 || len(f.EducForms) == 0 || len(f.Courses) == 0
}

// Entity kinds.
const (
	KindGroup   = "group"
	KindTeacher = "teacher"
)

// Entity is a study group or a teacher whose schedule can be fetched.
// FacultyLabel holds the faculty of a group and the chair of a teacher.
type Entity struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	FacultyLabel string `json:"faculty,omitempty"`
	Kind         string `json:"kind,omitempty"`
}

// IsTeacher reports whether e is an employee. Entities without a kind are
// study groups.
func (e Entity) IsTeacher() bool { return e.Kind == KindTeacher }

// Lesson is one schedule record.
type Lesson struct {
	Date            string `json:"full_date"`
	TimeSlot        string `json:"study_time"`
	Begin           string `json:"study_time_begin"`
	End             string `json:"study_time_end"`
	Room            string `json:"cabinet"`
	Discipline      string `json:"discipline"`
	Instructor      string `json:"employee"`
	InstructorShort string `json:"employee_short"`
	GroupLabel      string `json:"study_group"`
	StudyType       string `json:"study_type"`
	Contingent      string `json:"contingent"`
}

// Teacher returns the short instructor name, falling back to the full one.
func (l Lesson) Teacher() string {
	if l.InstructorShort != "" {
		return l.InstructorShort
	}
	return l.Instructor
}

type studyGroupsPayload struct {
	StudyGroups []Option `json:"studyGroups"`
}

type chairsPayload struct {
	Chairs []Option `json:"chairs"`
}

// quoteParam wraps string parameters in double quotes the way the widget
// expects. Empty strings and already quoted values are sent as is.
func quoteParam(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		if val == "" || val[0] == '"' {
			return val
		}
		return `"` + val + `"`
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return `"` + FormatDate(val) + `"`
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
