// Package notify derives chat notifications from project activity.
//
// Notifications are never stored as rows. Each one is a pure function of
// a project's denormalized last-message columns and the viewer's
// acknowledgement set, so re-deriving from identical inputs yields
// identical results.
package notify

import (
	"time"

	"atrium/api/internal/util"
)

// ProjectActivity is the slice of a project a notification derives from.
type ProjectActivity struct {
	ProjectID             string
	ProjectName           string
	LastMessageText       string
	LastMessageSenderID   string
	LastMessageSenderName string
	LastMessageAt         *time.Time
}

type Notification struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	ProjectName string    `json:"projectName"`
	SenderName  string    `json:"senderName"`
	Preview     string    `json:"preview"`
	SentAt      time.Time `json:"sentAt"`
}

// Identity is the stable notification id: project id joined with the
// last-message timestamp in epoch milliseconds. A newer message on the
// same project yields a new identity, which is how an acknowledged
// project re-surfaces.
func Identity(projectID string, sentAt time.Time) string {
	return projectID + "_" + util.Millis(sentAt)
}

// Derive walks the viewer's projects in input order and emits one
// notification per project with unseen activity. Skipped outright:
// projects with no messages, projects whose last-message timestamp has
// not settled yet, and messages the viewer sent themselves.
func Derive(projects []ProjectActivity, viewerID string, acked map[string]struct{}) []Notification {
	items := make([]Notification, 0)
	for _, p := range projects {
		if p.LastMessageText == "" || p.LastMessageAt == nil {
			continue
		}
		if p.LastMessageSenderID == viewerID {
			continue
		}
		id := Identity(p.ProjectID, *p.LastMessageAt)
		if _, ok := acked[id]; ok {
			continue
		}
		items = append(items, Notification{
			ID:          id,
			ProjectID:   p.ProjectID,
			ProjectName: p.ProjectName,
			SenderName:  p.LastMessageSenderName,
			Preview:     p.LastMessageText,
			SentAt:      *p.LastMessageAt,
		})
	}
	return items
}
