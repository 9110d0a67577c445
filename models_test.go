package portal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIDAcceptsNumbersAndStrings(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"id":42}`), &u))
	assert.Equal(t, UserID("42"), u.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"9a0c"}`), &u))
	assert.Equal(t, UserID("9a0c"), u.ID)

	raw, err := json.Marshal(User{ID: "42"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42}`, string(raw))

	raw, err = json.Marshal(User{ID: "9a0c"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"9a0c"}`, string(raw))

	for _, id := range []UserID{"007", "+5", "-0", "00"} {
		raw, err = json.Marshal(User{ID: id})
		require.NoError(t, err, id)
		assert.JSONEq(t, `{"id":"`+string(id)+`"}`, string(raw), id)

		var back User
		require.NoError(t, json.Unmarshal(raw, &back), id)
		assert.Equal(t, id, back.ID)
	}

	raw, err = json.Marshal(User{ID: "-12"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":-12}`, string(raw))
}

func TestTimestampLayouts(t *testing.T) {
	cases := map[string]time.Time{
		`"2024-03-01T10:00:00"`:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		`"2024-03-01T10:00:00.123"`:   time.Date(2024, 3, 1, 10, 0, 0, 123000000, time.UTC),
		`"2024-03-01T10:00:00Z"`:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		`"2024-03-01"`:                time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		`"2024-03-01T12:00:00+02:00"`: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		`null`:                        {},
		`"not a date"`:                {},
	}

	for in, want := range cases {
		var ts Timestamp
		require.NoError(t, ts.UnmarshalJSON([]byte(in)), in)
		assert.True(t, want.Equal(ts.Time), "%s: got %s", in, ts.Time)
	}
}

func TestUserAccountActive(t *testing.T) {
	cases := []struct {
		name string
		user *User
		want bool
	}{
		{"nil user", nil, false},
		{"no signals", &User{}, true},
		{"isActive true", &User{IsActive: boolPtr(true)}, true},
		{"isActive false", &User{IsActive: boolPtr(false)}, false},
		{"active false", &User{ActiveFlag: boolPtr(false)}, false},
		{"enabled false", &User{Enabled: boolPtr(false)}, false},
		{"mixed signals", &User{IsActive: boolPtr(true), Enabled: boolPtr(false)}, false},
		{"status inactive", &User{Status: "inactive"}, false},
		{"status active", &User{Status: "ACTIVE"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.user.AccountActive())
		})
	}
}

func TestUserRoles(t *testing.T) {
	assert.True(t, (&User{Role: "ADMIN"}).IsAdmin())
	assert.True(t, (&User{Role: "ADMIN"}).IsTeacher())
	assert.True(t, (&User{Role: "USER"}).IsStudent())
	assert.True(t, (&User{Role: "student"}).IsStudent())
	assert.False(t, (&User{Role: "STUDENT"}).IsAdmin())
	assert.False(t, (*User)(nil).IsAdmin())
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ana Lee", (&User{FirstName: "Ana", LastName: "Lee", Username: "ana"}).DisplayName())
	assert.Equal(t, "ana", (&User{Username: "ana", Email: "ana@example.com"}).DisplayName())
	assert.Equal(t, "ana@example.com", (&User{Email: "ana@example.com"}).DisplayName())
}

func TestUserCloneIsDeep(t *testing.T) {
	u := &User{ID: "1", IsActive: boolPtr(true), CreatedAt: &Timestamp{Time: time.Now()}}
	c := u.Clone()

	*c.IsActive = false
	c.CreatedAt.Time = time.Time{}

	assert.True(t, *u.IsActive)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestCourseDecoding(t *testing.T) {
	var c Course
	require.NoError(t, json.Unmarshal([]byte(`{"courseId":3,"courseName":"Go","courseCode":"GO1","courseDuration":4,"isActive":true,"updatedAt":"2024-05-01T08:30:00"}`), &c))
	assert.Equal(t, int64(3), c.ID)
	assert.Equal(t, "GO1", c.Code)
	assert.True(t, c.Available())
	require.NotNil(t, c.UpdatedAt)
	assert.Equal(t, 2024, c.UpdatedAt.Year())
}

func TestRegistrationPublicDropsPassword(t *testing.T) {
	r := &Registration{Username: "ana", Password: "secret"}
	pub := r.public()
	assert.Equal(t, "ana", pub.Username)
	assert.Empty(t, pub.Password)
	assert.Equal(t, "secret", r.Password)
}

func TestEnrollments(t *testing.T) {
	var enrollments []Enrollment
	require.NoError(t, json.Unmarshal([]byte(`[
		{"enrollmentId":9,"courseId":1,"enrollmentStatus":"ACTIVE","enrollmentDate":"2024-04-01T09:00:00"},
		{"enrollmentId":10,"courseId":7,"courseName":"Kept","courseCode":"K1"}
	]`), &enrollments))

	assert.True(t, Enrolled(enrollments, 1))
	assert.False(t, Enrolled(enrollments, 2))
	require.NotNil(t, enrollments[0].EnrolledAt)
	assert.Equal(t, 2024, enrollments[0].EnrolledAt.Year())

	fillEnrollments(enrollments, []Course{
		{ID: 1, Name: "Go Basics", Code: "GO101"},
		{ID: 7, Name: "Other", Code: "O1"},
	})
	assert.Equal(t, "Go Basics", enrollments[0].CourseName)
	assert.Equal(t, "GO101", enrollments[0].CourseCode)
	assert.Equal(t, "Kept", enrollments[1].CourseName)
	assert.Equal(t, "K1", enrollments[1].CourseCode)
}
