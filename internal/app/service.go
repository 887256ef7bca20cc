package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"atrium/api/internal/auth"
	"atrium/api/internal/authpw"
	"atrium/api/internal/config"
	"atrium/api/internal/email"
	"atrium/api/internal/export"
	"atrium/api/internal/notify"
	"atrium/api/internal/rbac"
	"atrium/api/internal/search"
	"atrium/api/internal/status"
	"atrium/api/internal/store"
	"atrium/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	OrgID        string
	JTI          string
	ExpiresAt    time.Time
}

type CreateEmployeeInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type UpdateEmployeeInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type CreateProjectInput struct {
	Name         string `json:"name"`
	Amount       string `json:"amount"`
	ClientAmount string `json:"clientAmount"`
	AssigneeID   string `json:"assigneeId"`
	ClientName   string `json:"clientName"`
	ClientEmail  string `json:"clientEmail"`
}

type TaskInput struct {
	Title  string `json:"title"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

type SendMessageInput struct {
	Text      string `json:"text"`
	ReplyToID string `json:"replyToId"`
}

// replySnippetLength caps the quoted preview carried on a reply.
const replySnippetLength = 50

type dataStore interface {
	Ping(ctx context.Context) error
	ListOrganizations(context.Context) ([]store.Organization, error)
	GetOrganization(context.Context, string) (store.Organization, error)
	InsertOrganization(context.Context, store.Organization) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	GetMembership(context.Context, string, string, string) (store.Member, error)
	ListEmployees(context.Context, string) ([]store.Member, error)
	CreateMember(context.Context, store.Member) error
	UpdateEmployee(context.Context, string, string, string, string, string) error
	DeleteMember(context.Context, string, string, string) error
	DeleteClientByProject(context.Context, string, string) error
	ListProjects(context.Context, string) ([]store.Project, error)
	ListProjectsByAssignee(context.Context, string, string) ([]store.Project, error)
	GetProject(context.Context, string, string) (store.Project, error)
	CreateProjectWithClient(context.Context, store.Project, store.Member) error
	UpdateProjectStatus(context.Context, string, string, string) error
	ListTasks(context.Context, string) ([]store.Task, error)
	TaskStatuses(context.Context, string) ([]string, error)
	GetTask(context.Context, string, string) (store.Task, error)
	InsertTask(context.Context, store.Task) error
	UpdateTask(context.Context, string, string, string, string, string) error
	DeleteTask(context.Context, string, string) error
	ListMessages(context.Context, string) ([]store.Message, error)
	GetMessage(context.Context, string, string) (store.Message, error)
	InsertMessage(context.Context, store.Message) (time.Time, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	SummaryCounts(context.Context, string) (store.OrgSummary, error)
}

// sessionStore holds refresh tokens. Backed by Redis when configured,
// otherwise by the refresh_sessions table.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, ident store.RefreshIdentity, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.RefreshIdentity, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	identity *authpw.Service
	acks     notify.AckStore
	search   *search.Service
	export   *export.Service
	email    *email.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, identity *authpw.Service, acks notify.AckStore, searchSvc *search.Service, emailSvc *email.Service) *Service {
	return NewWithSessionStore(cfg, dataStore, dataStore, identity, acks, searchSvc, emailSvc)
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, identity *authpw.Service, acks notify.AckStore, searchSvc *search.Service, emailSvc *email.Service) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		identity: identity,
		acks:     acks,
		search:   searchSvc,
		email:    emailSvc,
	}
	s.export = export.NewService(reportStore{s})
	return s
}

// Bootstrap seeds a demo organization on an empty database so the portal
// is explorable immediately after first start.
func (s *Service) Bootstrap(ctx context.Context) error {
	orgs, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return err
	}
	if len(orgs) > 0 {
		return nil
	}

	org := store.Organization{ID: "org_demo", Name: "Northwind Studio"}
	if _, err := s.store.GetOrganization(ctx, org.ID); err == nil {
		return nil
	}
	if err := s.seedOrganization(ctx, org); err != nil {
		return fmt.Errorf("seed organization: %w", err)
	}
	return nil
}

func (s *Service) seedOrganization(ctx context.Context, org store.Organization) error {
	// Organizations are created out of band; reuse the member upsert path
	// for everything else.
	type seedAccount struct {
		email    string
		password string
		name     string
		role     string
		phone    string
		address  string
	}
	accounts := []seedAccount{
		{"admin@northwind.test", "northwind-admin", "Avery Stone", rbac.RoleAdminName, "", ""},
		{"jordan@northwind.test", "northwind-team", "Jordan Lee", rbac.RoleEmployeeName, "555-0142", "12 Harbor Lane"},
	}

	if err := s.store.InsertOrganization(ctx, org); err != nil {
		return err
	}

	users := make(map[string]store.User, len(accounts))
	for _, account := range accounts {
		user, err := s.identity.Provision(ctx, account.email, account.password, account.name)
		if err != nil {
			return err
		}
		users[account.email] = user
		if err := s.store.CreateMember(ctx, store.Member{
			UserID:  user.ID,
			OrgID:   org.ID,
			Role:    account.role,
			Phone:   account.phone,
			Address: account.address,
		}); err != nil {
			return err
		}
	}

	assignee := users["jordan@northwind.test"]
	client, err := s.identity.Provision(ctx, "jane@client.test", "northwind-client", "Jane Doe")
	if err != nil {
		return err
	}

	project := store.Project{
		ID:           util.NewID("proj"),
		OrgID:        org.ID,
		Name:         "Website Redesign",
		ClientName:   client.DisplayName,
		ClientEmail:  client.Email,
		Amount:       "5000",
		ClientAmount: "12000",
		Status:       string(status.ProjectActive),
		AssigneeID:   assignee.ID,
		AssigneeName: assignee.DisplayName,
	}
	if err := s.store.CreateProjectWithClient(ctx, project, store.Member{
		UserID: client.ID,
		OrgID:  org.ID,
		Role:   rbac.RoleClientName,
	}); err != nil {
		return err
	}

	taskSeeds := []struct {
		title string
		date  string
		state status.TaskStatus
	}{
		{"Wireframes", "2026-09-15", status.TaskCompleted},
		{"Visual design", "2026-10-10", status.TaskInProcess},
		{"Build and launch", "2026-11-20", status.TaskNotStarted},
	}
	for _, seed := range taskSeeds {
		if err := s.store.InsertTask(ctx, store.Task{
			ID:         util.NewID("task"),
			ProjectID:  project.ID,
			Title:      seed.title,
			TargetDate: seed.date,
			Status:     string(seed.state),
		}); err != nil {
			return err
		}
	}

	if _, err := s.store.InsertMessage(ctx, store.Message{
		ID:         util.NewID("msg"),
		ProjectID:  project.ID,
		SenderID:   assignee.ID,
		SenderName: assignee.DisplayName,
		SenderRole: rbac.RoleEmployeeName,
		Text:       "Wireframes are up, let me know what you think!",
	}); err != nil {
		return err
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Role(role), action)
}

// PortalOrganizations lists organizations for the public portal chooser.
func (s *Service) PortalOrganizations(ctx context.Context) ([]map[string]any, error) {
	orgs, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(orgs))
	for _, org := range orgs {
		items = append(items, map[string]any{
			"id":   org.ID,
			"name": org.Name,
			"theme": map[string]any{
				"primary": org.ThemePrimary,
				"accent":  org.ThemeAccent,
			},
		})
	}
	return items, nil
}

// Login authenticates an email/password pair for one role within one
// organization. Valid credentials without a matching role record are
// refused: holding a client account somewhere never grants employee
// access anywhere.
func (s *Service) Login(ctx context.Context, orgID, emailAddr, password, role string) (Session, error) {
	if !rbac.Valid(role) {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be one of admin, employee, client", nil)
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return Session{}, err
	}

	user, err := s.identity.Authenticate(ctx, emailAddr, password)
	if err != nil {
		return Session{}, err
	}

	if _, err := s.store.GetMembership(ctx, orgID, user.ID, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, domainError(http.StatusForbidden, "FORBIDDEN", "No "+role+" access for this organization", nil)
		}
		return Session{}, err
	}

	return s.issueSession(ctx, store.RefreshIdentity{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		OrgID:       orgID,
		Role:        role,
	})
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	ident, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, ident)
}

func (s *Service) issueSession(ctx context.Context, ident store.RefreshIdentity) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   ident.UserID,
		Name:  ident.DisplayName,
		Email: ident.Email,
		Role:  ident.Role,
		Org:   ident.OrgID,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), ident, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       ident.UserID,
		UserName:     ident.DisplayName,
		Email:        ident.Email,
		Role:         ident.Role,
		OrgID:        ident.OrgID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Email:     claims.Email,
		Role:      claims.Role,
		OrgID:     claims.Org,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) ListEmployees(ctx context.Context, orgID string) ([]map[string]any, error) {
	employees, err := s.store.ListEmployees(ctx, orgID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(employees))
	for _, member := range employees {
		items = append(items, employeePayload(member))
	}
	return items, nil
}

// CreateEmployee provisions the identity, attaches the employee role
// record, and mails the initial credentials. When SMTP is not configured
// the credentials come back in the response instead.
func (s *Service) CreateEmployee(ctx context.Context, orgID string, input CreateEmployeeInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	emailAddr := strings.TrimSpace(strings.ToLower(input.Email))
	if name == "" || emailAddr == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name and email are required", nil)
	}

	password := authpw.GeneratePassword()
	user, err := s.identity.Provision(ctx, emailAddr, password, name)
	if err != nil {
		return nil, err
	}

	member := store.Member{
		UserID:  user.ID,
		OrgID:   orgID,
		Role:    rbac.RoleEmployeeName,
		Phone:   strings.TrimSpace(input.Phone),
		Address: strings.TrimSpace(input.Address),
		Name:    user.DisplayName,
		Email:   user.Email,
	}
	if err := s.store.CreateMember(ctx, member); err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexEmployee(search.EmployeeRecord{
			ID:      user.ID,
			Name:    user.DisplayName,
			Email:   user.Email,
			Phone:   member.Phone,
			Address: member.Address,
			OrgID:   orgID,
		})
	}

	payload := employeePayload(member)
	if s.SMTPConfigured() {
		org, err := s.store.GetOrganization(ctx, orgID)
		if err == nil {
			if err := s.email.SendWelcomeEmail(user.Email, user.DisplayName, org.Name, rbac.RoleEmployeeName, password, s.cfg.PortalURL); err != nil {
				log.Printf("welcome mail to %s failed: %v", user.Email, err)
			}
		}
	} else {
		payload["initialPassword"] = password
	}
	return payload, nil
}

func (s *Service) UpdateEmployee(ctx context.Context, orgID, userID string, input UpdateEmployeeInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if err := s.store.UpdateEmployee(ctx, orgID, userID, name, strings.TrimSpace(input.Phone), strings.TrimSpace(input.Address)); err != nil {
		return nil, err
	}
	member, err := s.store.GetMembership(ctx, orgID, userID, rbac.RoleEmployeeName)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexEmployee(search.EmployeeRecord{
			ID:      member.UserID,
			Name:    member.Name,
			Email:   member.Email,
			Phone:   member.Phone,
			Address: member.Address,
			OrgID:   orgID,
		})
	}
	return employeePayload(member), nil
}

func (s *Service) DeleteEmployee(ctx context.Context, orgID, userID string) error {
	if err := s.store.DeleteMember(ctx, orgID, userID, rbac.RoleEmployeeName); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteEmployee(userID)
	}
	return nil
}

// visibleProjects resolves the project set a session may see: admins the
// whole organization, employees their assignments, clients the single
// project their role record points at.
func (s *Service) visibleProjects(ctx context.Context, session Session) ([]store.Project, error) {
	switch session.Role {
	case rbac.RoleAdminName:
		return s.store.ListProjects(ctx, session.OrgID)
	case rbac.RoleEmployeeName:
		return s.store.ListProjectsByAssignee(ctx, session.OrgID, session.UserID)
	case rbac.RoleClientName:
		member, err := s.store.GetMembership(ctx, session.OrgID, session.UserID, rbac.RoleClientName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []store.Project{}, nil
			}
			return nil, err
		}
		if member.ProjectID == "" {
			return []store.Project{}, nil
		}
		project, err := s.store.GetProject(ctx, session.OrgID, member.ProjectID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []store.Project{}, nil
			}
			return nil, err
		}
		return []store.Project{project}, nil
	default:
		return []store.Project{}, nil
	}
}

func (s *Service) ListProjects(ctx context.Context, session Session) ([]map[string]any, error) {
	projects, err := s.visibleProjects(ctx, session)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		payload, err := s.projectPayload(ctx, project)
		if err != nil {
			return nil, err
		}
		items = append(items, payload)
	}
	return items, nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.requireVisibleProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	return s.projectPayload(ctx, project)
}

// requireVisibleProject loads a project and enforces per-role reach: a
// client asking for someone else's project gets a 404, not a 403, so the
// response does not confirm the project exists.
func (s *Service) requireVisibleProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, session.OrgID, projectID)
	if err != nil {
		return store.Project{}, err
	}
	switch session.Role {
	case rbac.RoleAdminName:
		return project, nil
	case rbac.RoleEmployeeName:
		if project.AssigneeID != session.UserID {
			return store.Project{}, sql.ErrNoRows
		}
		return project, nil
	case rbac.RoleClientName:
		member, err := s.store.GetMembership(ctx, session.OrgID, session.UserID, rbac.RoleClientName)
		if err != nil || member.ProjectID != projectID {
			return store.Project{}, sql.ErrNoRows
		}
		return project, nil
	default:
		return store.Project{}, sql.ErrNoRows
	}
}

// CreateProject provisions the client account and writes the project
// atomically with its client role record.
func (s *Service) CreateProject(ctx context.Context, orgID string, input CreateProjectInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	clientName := strings.TrimSpace(input.ClientName)
	clientEmail := strings.TrimSpace(strings.ToLower(input.ClientEmail))
	if name == "" || clientName == "" || clientEmail == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name, clientName and clientEmail are required", nil)
	}

	var assigneeName string
	assigneeID := strings.TrimSpace(input.AssigneeID)
	if assigneeID != "" {
		member, err := s.store.GetMembership(ctx, orgID, assigneeID, rbac.RoleEmployeeName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "assignee is not an employee of this organization", nil)
			}
			return nil, err
		}
		assigneeName = member.Name
	}

	password := authpw.GeneratePassword()
	client, err := s.identity.Provision(ctx, clientEmail, password, clientName)
	if err != nil {
		return nil, err
	}

	project := store.Project{
		ID:           util.NewID("proj"),
		OrgID:        orgID,
		Name:         name,
		ClientName:   client.DisplayName,
		ClientEmail:  client.Email,
		Amount:       strings.TrimSpace(input.Amount),
		ClientAmount: strings.TrimSpace(input.ClientAmount),
		Status:       string(status.ProjectActive),
		AssigneeID:   assigneeID,
		AssigneeName: assigneeName,
	}
	if err := s.store.CreateProjectWithClient(ctx, project, store.Member{
		UserID: client.ID,
		OrgID:  orgID,
		Role:   rbac.RoleClientName,
	}); err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexProject(projectRecord(project))
	}

	payload, err := s.projectPayload(ctx, project)
	if err != nil {
		return nil, err
	}
	if s.SMTPConfigured() {
		org, orgErr := s.store.GetOrganization(ctx, orgID)
		if orgErr == nil {
			if err := s.email.SendWelcomeEmail(client.Email, client.DisplayName, org.Name, rbac.RoleClientName, password, s.cfg.PortalURL); err != nil {
				log.Printf("welcome mail to %s failed: %v", client.Email, err)
			}
		}
	} else {
		payload["clientInitialPassword"] = password
	}
	return payload, nil
}

// CompleteProject moves Active to Completed. With pending tasks the call
// must carry confirm=true; without it the pending count comes back in the
// error details and nothing changes.
func (s *Service) CompleteProject(ctx context.Context, orgID, projectID string, confirm bool) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	current := status.ProjectStatus(project.Status)
	if current == status.ProjectCompleted {
		return s.projectPayload(ctx, project)
	}
	if !status.CanTransitionProject(current, status.ProjectCompleted) {
		return nil, domainError(http.StatusConflict, "INVALID_TRANSITION", fmt.Sprintf("cannot complete a %s project", project.Status), nil)
	}

	rawStatuses, err := s.store.TaskStatuses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	statuses := make([]status.TaskStatus, 0, len(rawStatuses))
	for _, raw := range rawStatuses {
		statuses = append(statuses, status.TaskStatus(raw))
	}
	if pending := status.PendingCount(statuses); pending > 0 && !confirm {
		return nil, domainError(http.StatusConflict, "PENDING_TASKS", "Project has unfinished tasks", map[string]any{"pending": pending})
	}

	if err := s.store.UpdateProjectStatus(ctx, orgID, projectID, string(status.ProjectCompleted)); err != nil {
		return nil, err
	}
	project.Status = string(status.ProjectCompleted)

	if s.search != nil {
		s.search.IndexProject(projectRecord(project))
	}
	s.notifyProjectClosed(ctx, project)

	return s.projectPayload(ctx, project)
}

// CancelProject moves Active to Cancelled and then revokes the client's
// role record. The status write settles first: if the revocation fails
// the project is still Cancelled and the response says the client
// retains access.
func (s *Service) CancelProject(ctx context.Context, orgID, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	current := status.ProjectStatus(project.Status)
	if current == status.ProjectCancelled {
		payload, err := s.projectPayload(ctx, project)
		if err != nil {
			return nil, err
		}
		payload["clientRevoked"] = true
		return payload, nil
	}
	if !status.CanTransitionProject(current, status.ProjectCancelled) {
		return nil, domainError(http.StatusConflict, "INVALID_TRANSITION", fmt.Sprintf("cannot cancel a %s project", project.Status), nil)
	}

	if err := s.store.UpdateProjectStatus(ctx, orgID, projectID, string(status.ProjectCancelled)); err != nil {
		return nil, err
	}
	project.Status = string(status.ProjectCancelled)

	clientRevoked := true
	if err := s.store.DeleteClientByProject(ctx, orgID, projectID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Printf("revoke client for project %s: %v", projectID, err)
		clientRevoked = false
	}

	if s.search != nil {
		s.search.IndexProject(projectRecord(project))
	}
	s.notifyProjectClosed(ctx, project)

	payload, err := s.projectPayload(ctx, project)
	if err != nil {
		return nil, err
	}
	payload["clientRevoked"] = clientRevoked
	return payload, nil
}

func (s *Service) notifyProjectClosed(ctx context.Context, project store.Project) {
	if !s.SMTPConfigured() || project.ClientEmail == "" {
		return
	}
	org, err := s.store.GetOrganization(ctx, project.OrgID)
	if err != nil {
		return
	}
	if err := s.email.SendProjectClosedEmail(project.ClientEmail, org.Name, project.Name, project.Status, s.cfg.PortalURL); err != nil {
		log.Printf("project closed mail to %s failed: %v", project.ClientEmail, err)
	}
}

func (s *Service) Summary(ctx context.Context, orgID string) (map[string]any, error) {
	summary, err := s.store.SummaryCounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"employees":         summary.Employees,
		"projectsThisMonth": summary.ProjectsThisMonth,
		"active":            summary.Active,
		"completed":         summary.Completed,
		"cancelled":         summary.Cancelled,
	}, nil
}

func (s *Service) ListTasks(ctx context.Context, session Session, projectID string) ([]map[string]any, error) {
	if _, err := s.requireVisibleProject(ctx, session, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskPayload(task))
	}
	return items, nil
}

// requireMutableTasks is the Completed guard shared by every task write.
func (s *Service) requireMutableTasks(ctx context.Context, session Session, projectID string) (store.Project, error) {
	project, err := s.requireVisibleProject(ctx, session, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if !status.TasksMutable(status.ProjectStatus(project.Status)) {
		return store.Project{}, domainError(http.StatusConflict, "RESTRICTED", "Tasks are read-only once a project is completed", nil)
	}
	return project, nil
}

func (s *Service) CreateTask(ctx context.Context, session Session, projectID string, input TaskInput) (map[string]any, error) {
	if _, err := s.requireMutableTasks(ctx, session, projectID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	state := status.TaskNotStarted
	if raw := strings.TrimSpace(input.Status); raw != "" {
		parsed, ok := status.ParseTaskStatus(raw)
		if !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of Not Started, In Process, Completed", nil)
		}
		state = parsed
	}
	task := store.Task{
		ID:         util.NewID("task"),
		ProjectID:  projectID,
		Title:      title,
		TargetDate: strings.TrimSpace(input.Date),
		Status:     string(state),
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}
	return taskPayload(task), nil
}

func (s *Service) UpdateTask(ctx context.Context, session Session, projectID, taskID string, input TaskInput) (map[string]any, error) {
	if _, err := s.requireMutableTasks(ctx, session, projectID); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = task.Title
	}
	targetDate := strings.TrimSpace(input.Date)
	if targetDate == "" {
		targetDate = task.TargetDate
	}
	state := status.TaskStatus(task.Status)
	if raw := strings.TrimSpace(input.Status); raw != "" {
		parsed, ok := status.ParseTaskStatus(raw)
		if !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of Not Started, In Process, Completed", nil)
		}
		if !status.CanTransitionTask(status.TaskStatus(task.Status), parsed) {
			return nil, domainError(http.StatusConflict, "INVALID_TRANSITION", "task cannot move to that status", nil)
		}
		state = parsed
	}
	if err := s.store.UpdateTask(ctx, projectID, taskID, title, targetDate, string(state)); err != nil {
		return nil, err
	}
	task.Title = title
	task.TargetDate = targetDate
	task.Status = string(state)
	return taskPayload(task), nil
}

func (s *Service) DeleteTask(ctx context.Context, session Session, projectID, taskID string) error {
	if _, err := s.requireMutableTasks(ctx, session, projectID); err != nil {
		return err
	}
	return s.store.DeleteTask(ctx, projectID, taskID)
}

func (s *Service) ListMessages(ctx context.Context, session Session, projectID string) ([]map[string]any, error) {
	if _, err := s.requireVisibleProject(ctx, session, projectID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		items = append(items, messagePayload(message))
	}
	return items, nil
}

// SendMessage appends to the project chat. Reply context is resolved
// server side from the quoted message so the snippet cannot be forged.
func (s *Service) SendMessage(ctx context.Context, session Session, projectID string, input SendMessageInput) (map[string]any, error) {
	if _, err := s.requireVisibleProject(ctx, session, projectID); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}

	message := store.Message{
		ID:         util.NewID("msg"),
		ProjectID:  projectID,
		SenderID:   session.UserID,
		SenderName: session.UserName,
		SenderRole: session.Role,
		Text:       text,
	}
	if replyID := strings.TrimSpace(input.ReplyToID); replyID != "" {
		quoted, err := s.store.GetMessage(ctx, projectID, replyID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "replied-to message not found", nil)
			}
			return nil, err
		}
		message.ReplyToID = quoted.ID
		message.ReplyToSender = quoted.SenderName
		message.ReplyToSnippet = snippet(quoted.Text)
	}

	sentAt, err := s.store.InsertMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	message.CreatedAt = sentAt
	return messagePayload(message), nil
}

// Notifications derives the unread list for the session's viewpoint.
func (s *Service) Notifications(ctx context.Context, session Session) ([]map[string]any, error) {
	projects, err := s.visibleProjects(ctx, session)
	if err != nil {
		return nil, err
	}
	acked, err := s.acks.Acked(ctx, ackScope(session))
	if err != nil {
		return nil, err
	}

	activity := make([]notify.ProjectActivity, 0, len(projects))
	for _, project := range projects {
		activity = append(activity, notify.ProjectActivity{
			ProjectID:             project.ID,
			ProjectName:           project.Name,
			LastMessageText:       project.LastMessageText,
			LastMessageSenderID:   project.LastMessageSenderID,
			LastMessageSenderName: project.LastMessageSenderName,
			LastMessageAt:         project.LastMessageAt,
		})
	}

	notifications := notify.Derive(activity, session.UserID, acked)
	items := make([]map[string]any, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, map[string]any{
			"id":          n.ID,
			"projectId":   n.ProjectID,
			"projectName": n.ProjectName,
			"senderName":  n.SenderName,
			"preview":     n.Preview,
			"sentAt":      n.SentAt,
		})
	}
	return items, nil
}

func (s *Service) AckNotification(ctx context.Context, session Session, notificationID string) error {
	if strings.TrimSpace(notificationID) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "notification id is required", nil)
	}
	return s.acks.Add(ctx, ackScope(session), notificationID)
}

// AckAllNotifications clears everything currently derivable, not a
// stored list: it re-derives and acknowledges those identities.
func (s *Service) AckAllNotifications(ctx context.Context, session Session) (int, error) {
	items, err := s.Notifications(ctx, session)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if id, ok := item["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	if err := s.acks.Add(ctx, ackScope(session), ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Service) Search(ctx context.Context, orgID, query, filterType string, limit, offset int) (map[string]any, error) {
	if s.search == nil {
		return map[string]any{"results": []any{}, "total": 0, "query": query}, nil
	}
	response := s.search.Search(search.Query{
		Text:       query,
		FilterType: search.ResultType(filterType),
		OrgID:      orgID,
		Limit:      limit,
		Offset:     offset,
	})
	return map[string]any{
		"results": response.Results,
		"total":   response.Total,
		"query":   response.Query,
	}, nil
}

// ExportReport renders the status report for any project the session can
// see, so a client can pull their own project's report.
func (s *Service) ExportReport(ctx context.Context, session Session, projectID string, format export.Format) (*export.Result, error) {
	if _, err := s.requireVisibleProject(ctx, session, projectID); err != nil {
		return nil, err
	}
	return s.export.Export(ctx, export.Request{
		OrgID:     session.OrgID,
		ProjectID: projectID,
		Format:    format,
	})
}

func ackScope(session Session) notify.Scope {
	return notify.Scope{OrgID: session.OrgID, Role: session.Role, ViewerID: session.UserID}
}

func (s *Service) projectPayload(ctx context.Context, project store.Project) (map[string]any, error) {
	rawStatuses, err := s.store.TaskStatuses(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	statuses := make([]status.TaskStatus, 0, len(rawStatuses))
	for _, raw := range rawStatuses {
		statuses = append(statuses, status.TaskStatus(raw))
	}

	var lastMessage map[string]any
	if project.LastMessageAt != nil && project.LastMessageText != "" {
		lastMessage = map[string]any{
			"text":       project.LastMessageText,
			"senderId":   project.LastMessageSenderID,
			"senderName": project.LastMessageSenderName,
			"sentAt":     project.LastMessageAt,
		}
	}

	return map[string]any{
		"id":           project.ID,
		"name":         project.Name,
		"clientName":   project.ClientName,
		"clientEmail":  project.ClientEmail,
		"amount":       project.Amount,
		"clientAmount": project.ClientAmount,
		"status":       project.Status,
		"assigneeId":   project.AssigneeID,
		"assigneeName": project.AssigneeName,
		"progress":     status.Progress(statuses),
		"taskCount":    len(statuses),
		"pendingTasks": status.PendingCount(statuses),
		"lastMessage":  lastMessage,
		"createdAt":    project.CreatedAt,
	}, nil
}

func employeePayload(member store.Member) map[string]any {
	return map[string]any{
		"id":       member.UserID,
		"name":     member.Name,
		"email":    member.Email,
		"phone":    member.Phone,
		"address":  member.Address,
		"joinedAt": member.CreatedAt,
	}
}

func taskPayload(task store.Task) map[string]any {
	return map[string]any{
		"id":        task.ID,
		"title":     task.Title,
		"date":      task.TargetDate,
		"status":    task.Status,
		"createdAt": task.CreatedAt,
		"updatedAt": task.UpdatedAt,
	}
}

func messagePayload(message store.Message) map[string]any {
	var replyTo map[string]any
	if message.ReplyToID != "" {
		replyTo = map[string]any{
			"id":         message.ReplyToID,
			"senderName": message.ReplyToSender,
			"snippet":    message.ReplyToSnippet,
		}
	}
	return map[string]any{
		"id":         message.ID,
		"senderId":   message.SenderID,
		"senderName": message.SenderName,
		"senderRole": message.SenderRole,
		"text":       message.Text,
		"replyTo":    replyTo,
		"sentAt":     message.CreatedAt,
	}
}

func projectRecord(project store.Project) search.ProjectRecord {
	return search.ProjectRecord{
		ID:           project.ID,
		Name:         project.Name,
		ClientName:   project.ClientName,
		ClientEmail:  project.ClientEmail,
		AssigneeName: project.AssigneeName,
		Status:       project.Status,
		OrgID:        project.OrgID,
	}
}

// snippet truncates quoted reply text to its leading runes.
func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= replySnippetLength {
		return text
	}
	return string(runes[:replySnippetLength])
}

// reportStore adapts the service's data store to the export renderer.
type reportStore struct {
	s *Service
}

func (r reportStore) GetProjectInfo(ctx context.Context, orgID, projectID string) (export.ProjectInfo, error) {
	project, err := r.s.store.GetProject(ctx, orgID, projectID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	org, err := r.s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	return export.ProjectInfo{
		ID:           project.ID,
		Name:         project.Name,
		ClientName:   project.ClientName,
		ClientEmail:  project.ClientEmail,
		AssigneeName: project.AssigneeName,
		Status:       project.Status,
		Amount:       project.Amount,
		ClientAmount: project.ClientAmount,
		OrgName:      org.Name,
	}, nil
}

func (r reportStore) ListTaskInfo(ctx context.Context, projectID string) ([]export.TaskInfo, error) {
	tasks, err := r.s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]export.TaskInfo, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, export.TaskInfo{Title: task.Title, TargetDate: task.TargetDate, Status: task.Status})
	}
	return items, nil
}

func (r reportStore) ListMessageInfo(ctx context.Context, projectID string) ([]export.MessageInfo, error) {
	messages, err := r.s.store.ListMessages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]export.MessageInfo, 0, len(messages))
	for _, message := range messages {
		items = append(items, export.MessageInfo{
			SenderName: message.SenderName,
			Text:       message.Text,
			SentAt:     message.CreatedAt,
		})
	}
	return items, nil
}
