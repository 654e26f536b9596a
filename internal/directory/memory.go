package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Notification is one recorded notification.
type Notification struct {
	UserID  string
	Message string
}

// CreatedTask is one recorded task creation.
type CreatedTask struct {
	ID string
	TaskRequest
}

// Memory is an in-memory Service implementation with deterministic
// task ids. It backs the CLI's default wiring and tests.
type Memory struct {
	mu            sync.Mutex
	users         map[string]string // lowercased name -> user id
	tasks         []CreatedTask
	notifications []Notification
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{users: make(map[string]string)}
}

// AddUser registers a resolvable user name.
func (m *Memory) AddUser(name, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[strings.ToLower(name)] = id
}

// CreateTask implements TaskCreator.
func (m *Memory) CreateTask(ctx context.Context, req TaskRequest) (string, error) {
	if req.Title == "" {
		return "", fmt.Errorf("task title is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("task-%d", len(m.tasks)+1)
	m.tasks = append(m.tasks, CreatedTask{ID: id, TaskRequest: req})
	return id, nil
}

// LookupUser implements UserLookup.
func (m *Memory) LookupUser(ctx context.Context, name, companyID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.users[strings.ToLower(name)]; ok {
		return id, nil
	}
	return "", fmt.Errorf("lookup %q: %w", name, ErrUserNotFound)
}

// SendNotification implements Notifier.
func (m *Memory) SendNotification(ctx context.Context, userID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, Notification{UserID: userID, Message: message})
	return nil
}

// Tasks returns a copy of all recorded task creations.
func (m *Memory) Tasks() []CreatedTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CreatedTask, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Notifications returns a copy of all recorded notifications.
func (m *Memory) Notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

var _ Service = (*Memory)(nil)
