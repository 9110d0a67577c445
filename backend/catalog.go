package backend

import (
	"context"
	"net/http"
	"net/url"
)

// Courses lists the course catalog
func (c *Client) Courses(ctx context.Context) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, "/courses", nil)
}

// Course returns a single course
func (c *Client) Course(ctx context.Context, id string) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, resourcePath("/courses/%s", url.PathEscape(id)), nil)
}

// Users lists accounts, admin only
func (c *Client) Users(ctx context.Context) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, "/users", nil)
}

// SetUserActive activates or deactivates an account, admin only
func (c *Client) SetUserActive(ctx context.Context, id string, active bool) (*Envelope, error) {
	action := "deactivate"
	if active {
		action = "activate"
	}
	return c.Do(ctx, http.MethodPatch, resourcePath("/users/%s/%s", url.PathEscape(id), action), nil)
}

// StudentProfile returns the profile of the calling student
func (c *Client) StudentProfile(ctx context.Context) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, "/student/profile", nil)
}

// Enroll signs the calling student up for a course
func (c *Client) Enroll(ctx context.Context, courseID string) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, resourcePath("/student/enroll/%s", url.PathEscape(courseID)), nil)
}

// MyEnrollments lists the enrollments of the calling student
func (c *Client) MyEnrollments(ctx context.Context) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, "/student/enrollments", nil)
}
