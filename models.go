package portal

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// UserID accepts numeric and string identifiers from the backend
type UserID string

// UnmarshalJSON decodes numbers and strings
func (id *UserID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = UserID(n.String())
	return nil
}

// MarshalJSON keeps numeric identifiers numeric
func (id UserID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id UserID) String() string {
	return string(id)
}

// Timestamp decodes backend dates with or without a zone offset
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON ignores values it cannot parse
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	t.Time = time.Time{}
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return nil
}

// MarshalJSON writes RFC3339
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// status values that mark an account as inactive
var inactiveStatuses = map[string]bool{
	"INACTIVE":    true,
	"DEACTIVATED": true,
	"DISABLED":    true,
	"SUSPENDED":   true,
}

// User is the identity record returned by the LMS backend and persisted
// in the client's storage namespace.
type User struct {
	ID          UserID     `json:"id,omitempty"`
	Username    string     `json:"username,omitempty"`
	Email       string     `json:"email,omitempty"`
	Role        string     `json:"role,omitempty"`
	IsActive    *bool      `json:"isActive,omitempty"`
	ActiveFlag  *bool      `json:"active,omitempty"`
	Enabled     *bool      `json:"enabled,omitempty"`
	Status      string     `json:"status,omitempty"`
	FirstName   string     `json:"firstName,omitempty"`
	LastName    string     `json:"lastName,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	CreatedAt   *Timestamp `json:"createdAt,omitempty"`
}

// AccountActive is false when any of the status signals marks the
// account inactive. Missing signals count as active.
func (u *User) AccountActive() bool {
	if u == nil {
		return false
	}
	for _, flag := range []*bool{u.IsActive, u.ActiveFlag, u.Enabled} {
		if flag != nil && !*flag {
			return false
		}
	}
	return !inactiveStatuses[strings.ToUpper(strings.TrimSpace(u.Status))]
}

// RoleValue returns the canonical role
func (u *User) RoleValue() Role {
	if u == nil {
		return RoleUnknown
	}
	return ParseRole(u.Role)
}

// IsAdmin reports an ADMIN role
func (u *User) IsAdmin() bool {
	return u.RoleValue() == RoleAdmin
}

// IsStudent reports a STUDENT role, USER included
func (u *User) IsStudent() bool {
	return u.RoleValue() == RoleStudent
}

// IsTeacher is kept for older templates, teachers are admins
func (u *User) IsTeacher() bool {
	return u.IsAdmin()
}

// DisplayName returns the best available name for the user
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.IsActive = cloneBool(u.IsActive)
	out.ActiveFlag = cloneBool(u.ActiveFlag)
	out.Enabled = cloneBool(u.Enabled)
	if u.CreatedAt != nil {
		t := *u.CreatedAt
		out.CreatedAt = &t
	}
	return &out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// AuthPayload is the data block of a successful login
type AuthPayload struct {
	User      *User  `json:"user"`
	Token     string `json:"token"`
	TokenType string `json:"tokenType,omitempty"`
	ExpiresIn int64  `json:"expiresIn,omitempty"`
}

// Credentials used to log in
type Credentials struct {
	UsernameOrEmail string `form:"usernameOrEmail" json:"usernameOrEmail"`
	Password        string `form:"password" json:"password"`
}

// Registration is the account creation payload
type Registration struct {
	Username    string `form:"username" json:"username"`
	Email       string `form:"email" json:"email"`
	Password    string `form:"password" json:"password"`
	FirstName   string `form:"firstName" json:"firstName"`
	LastName    string `form:"lastName" json:"lastName"`
	PhoneNumber string `form:"phoneNumber" json:"phoneNumber,omitempty"`
}

// public returns the payload without the password, for re-rendering forms
func (r *Registration) public() Registration {
	if r == nil {
		return Registration{}
	}
	out := *r
	out.Password = ""
	return out
}

// Course is a catalog entry
type Course struct {
	ID          int64      `json:"courseId"`
	Name        string     `json:"courseName"`
	Code        string     `json:"courseCode"`
	Duration    int        `json:"courseDuration,omitempty"`
	Description string     `json:"description,omitempty"`
	IsActive    *bool      `json:"isActive,omitempty"`
	CreatedAt   *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt   *Timestamp `json:"updatedAt,omitempty"`
}

// Available reports whether the course is open
func (c Course) Available() bool {
	return c.IsActive == nil || *c.IsActive
}

// Enrollment links the calling student to a course
type Enrollment struct {
	ID         int64      `json:"enrollmentId"`
	CourseID   int64      `json:"courseId"`
	CourseName string     `json:"courseName,omitempty"`
	CourseCode string     `json:"courseCode,omitempty"`
	Status     string     `json:"enrollmentStatus,omitempty"`
	EnrolledAt *Timestamp `json:"enrollmentDate,omitempty"`
}

// Enrolled reports whether one of the enrollments is for courseID
func Enrolled(enrollments []Enrollment, courseID int64) bool {
	for _, e := range enrollments {
		if e.CourseID == courseID {
			return true
		}
	}
	return false
}

// fillEnrollments completes enrollments that came without course details
func fillEnrollments(enrollments []Enrollment, courses []Course) {
	byID := make(map[int64]Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}
	for i := range enrollments {
		c, ok := byID[enrollments[i].CourseID]
		if !ok {
			continue
		}
		if enrollments[i].CourseName == "" {
			enrollments[i].CourseName = c.Name
		}
		if enrollments[i].CourseCode == "" {
			enrollments[i].CourseCode = c.Code
		}
	}
}
