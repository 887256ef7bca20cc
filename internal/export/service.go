package export

import (
	"context"
	"fmt"
	"time"

	"atrium/api/internal/status"
)

// DataStore defines the data access the report renderer needs.
type DataStore interface {
	GetProjectInfo(ctx context.Context, orgID, projectID string) (ProjectInfo, error)
	ListTaskInfo(ctx context.Context, projectID string) ([]TaskInfo, error)
	ListMessageInfo(ctx context.Context, projectID string) ([]MessageInfo, error)
}

// ProjectInfo holds project metadata for the report header. Amount is
// the employee payout and ClientAmount what the client pays.
type ProjectInfo struct {
	ID           string
	Name         string
	ClientName   string
	ClientEmail  string
	AssigneeName string
	Status       string
	Amount       string
	ClientAmount string
	OrgName      string
}

// TaskInfo holds one task row.
type TaskInfo struct {
	Title      string
	TargetDate string
	Status     string
}

// MessageInfo holds one recent chat message.
type MessageInfo struct {
	SenderName string
	Text       string
	SentAt     time.Time
}

// maxReportMessages caps the activity section at the most recent messages.
const maxReportMessages = 10

// Service renders project status reports.
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates a status report in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	project, err := s.store.GetProjectInfo(ctx, req.OrgID, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	tasks, err := s.store.ListTaskInfo(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	messages, err := s.store.ListMessageInfo(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(messages) > maxReportMessages {
		messages = messages[len(messages)-maxReportMessages:]
	}

	statuses := make([]status.TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		statuses = append(statuses, status.TaskStatus(t.Status))
	}
	progress := status.Progress(statuses)

	data := TemplateData{
		Project:     project,
		Tasks:       tasks,
		Messages:    messages,
		Progress:    progress,
		GeneratedAt: time.Now().UTC(),
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(project.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return renderPDF(html, project.Name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
