// Package directory defines the narrow capabilities Conductor consumes
// from the surrounding business platform: creating tasks, resolving
// user names, and sending notifications. The platform's own storage
// and CRUD surface stays outside this module.
package directory

import (
	"context"
	"errors"
)

// ErrUserNotFound indicates a name could not be resolved to a user id.
var ErrUserNotFound = errors.New("user not found")

// TaskRequest describes a task to create.
type TaskRequest struct {
	Title       string
	Description string
	Assignee    string
	DueDate     string
	Priority    string
}

// TaskCreator creates tasks in the business platform.
type TaskCreator interface {
	// CreateTask creates a task and returns its id.
	CreateTask(ctx context.Context, req TaskRequest) (string, error)
}

// UserLookup resolves user names to ids within a company.
type UserLookup interface {
	// LookupUser returns the user id for a name, or ErrUserNotFound.
	LookupUser(ctx context.Context, name, companyID string) (string, error)
}

// Notifier delivers fire-and-forget notifications.
type Notifier interface {
	// SendNotification sends a message to a user. Errors are advisory;
	// callers treat delivery as best-effort.
	SendNotification(ctx context.Context, userID, message string) error
}

// Service composes every capability the workflows and responders use.
type Service interface {
	TaskCreator
	UserLookup
	Notifier
}
