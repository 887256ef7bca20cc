package store

import "time"

type Organization struct {
	ID           string
	Name         string
	ThemePrimary string
	ThemeAccent  string
	CreatedAt    time.Time
}

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Member is a role record binding a user to an organization. A user may
// hold different roles in different organizations; the portal only admits
// a login when a matching (org, user, role) record exists.
type Member struct {
	UserID    string
	OrgID     string
	Role      string
	Phone     string // employees only
	Address   string // employees only
	ProjectID string // clients only
	CreatedAt time.Time
	UpdatedAt time.Time
	// Joined fields for API responses
	Name  string
	Email string
}

type Project struct {
	ID          string
	OrgID       string
	Name        string
	ClientName  string
	ClientEmail string
	// Amount is the employee payout, ClientAmount what the client pays;
	// both are free-form strings as entered by the admin.
	Amount       string
	ClientAmount string
	Status       string
	AssigneeID   string
	AssigneeName string
	// Denormalized chat activity, maintained by InsertMessage.
	LastMessageText       string
	LastMessageSenderID   string
	LastMessageSenderName string
	LastMessageAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Task struct {
	ID         string
	ProjectID  string
	Title      string
	TargetDate string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Message struct {
	ID             string
	ProjectID      string
	SenderID       string
	SenderName     string
	SenderRole     string
	Text           string
	ReplyToID      string
	ReplyToSender  string
	ReplyToSnippet string
	CreatedAt      time.Time
}

// RefreshIdentity is what a refresh token resolves back to.
type RefreshIdentity struct {
	UserID      string
	DisplayName string
	Email       string
	OrgID       string
	Role        string
}

// OrgSummary backs the admin dashboard counters.
type OrgSummary struct {
	Employees         int
	ProjectsThisMonth int
	Active            int
	Completed         int
	Cancelled         int
}
