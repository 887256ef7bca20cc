package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"atrium/api/internal/authpw"
	"atrium/api/internal/config"
	"atrium/api/internal/export"
	"atrium/api/internal/notify"
	"atrium/api/internal/store"
)

type fakeStore struct {
	getOrganizationFn         func(context.Context, string) (store.Organization, error)
	getUserByEmailFn          func(context.Context, string) (store.User, error)
	createUserFn              func(context.Context, store.User) error
	getMembershipFn           func(context.Context, string, string, string) (store.Member, error)
	listEmployeesFn           func(context.Context, string) ([]store.Member, error)
	createMemberFn            func(context.Context, store.Member) error
	deleteClientByProjectFn   func(context.Context, string, string) error
	listProjectsFn            func(context.Context, string) ([]store.Project, error)
	listProjectsByAssigneeFn  func(context.Context, string, string) ([]store.Project, error)
	getProjectFn              func(context.Context, string, string) (store.Project, error)
	createProjectWithClientFn func(context.Context, store.Project, store.Member) error
	updateProjectStatusFn     func(context.Context, string, string, string) error
	listTasksFn               func(context.Context, string) ([]store.Task, error)
	taskStatusesFn            func(context.Context, string) ([]string, error)
	getTaskFn                 func(context.Context, string, string) (store.Task, error)
	insertTaskFn              func(context.Context, store.Task) error
	updateTaskFn              func(context.Context, string, string, string, string, string) error
	listMessagesFn            func(context.Context, string) ([]store.Message, error)
	getMessageFn              func(context.Context, string, string) (store.Message, error)
	insertMessageFn           func(context.Context, store.Message) (time.Time, error)
	summaryCountsFn           func(context.Context, string) (store.OrgSummary, error)
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) ListOrganizations(context.Context) ([]store.Organization, error) {
	return nil, nil
}
func (f *fakeStore) GetOrganization(ctx context.Context, orgID string) (store.Organization, error) {
	if f.getOrganizationFn != nil {
		return f.getOrganizationFn(ctx, orgID)
	}
	return store.Organization{ID: orgID, Name: "Test Org"}, nil
}
func (f *fakeStore) InsertOrganization(context.Context, store.Organization) error { return nil }
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByID(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) GetMembership(ctx context.Context, orgID, userID, role string) (store.Member, error) {
	if f.getMembershipFn != nil {
		return f.getMembershipFn(ctx, orgID, userID, role)
	}
	return store.Member{}, sql.ErrNoRows
}
func (f *fakeStore) ListEmployees(ctx context.Context, orgID string) ([]store.Member, error) {
	if f.listEmployeesFn != nil {
		return f.listEmployeesFn(ctx, orgID)
	}
	return nil, nil
}
func (f *fakeStore) CreateMember(ctx context.Context, member store.Member) error {
	if f.createMemberFn != nil {
		return f.createMemberFn(ctx, member)
	}
	return nil
}
func (f *fakeStore) UpdateEmployee(context.Context, string, string, string, string, string) error {
	return nil
}
func (f *fakeStore) DeleteMember(context.Context, string, string, string) error { return nil }
func (f *fakeStore) DeleteClientByProject(ctx context.Context, orgID, projectID string) error {
	if f.deleteClientByProjectFn != nil {
		return f.deleteClientByProjectFn(ctx, orgID, projectID)
	}
	return nil
}
func (f *fakeStore) ListProjects(ctx context.Context, orgID string) ([]store.Project, error) {
	if f.listProjectsFn != nil {
		return f.listProjectsFn(ctx, orgID)
	}
	return nil, nil
}
func (f *fakeStore) ListProjectsByAssignee(ctx context.Context, orgID, assigneeID string) ([]store.Project, error) {
	if f.listProjectsByAssigneeFn != nil {
		return f.listProjectsByAssigneeFn(ctx, orgID, assigneeID)
	}
	return nil, nil
}
func (f *fakeStore) GetProject(ctx context.Context, orgID, projectID string) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, orgID, projectID)
	}
	return store.Project{}, sql.ErrNoRows
}
func (f *fakeStore) CreateProjectWithClient(ctx context.Context, project store.Project, client store.Member) error {
	if f.createProjectWithClientFn != nil {
		return f.createProjectWithClientFn(ctx, project, client)
	}
	return nil
}
func (f *fakeStore) UpdateProjectStatus(ctx context.Context, orgID, projectID, statusValue string) error {
	if f.updateProjectStatusFn != nil {
		return f.updateProjectStatusFn(ctx, orgID, projectID, statusValue)
	}
	return nil
}
func (f *fakeStore) ListTasks(ctx context.Context, projectID string) ([]store.Task, error) {
	if f.listTasksFn != nil {
		return f.listTasksFn(ctx, projectID)
	}
	return nil, nil
}
func (f *fakeStore) TaskStatuses(ctx context.Context, projectID string) ([]string, error) {
	if f.taskStatusesFn != nil {
		return f.taskStatusesFn(ctx, projectID)
	}
	return nil, nil
}
func (f *fakeStore) GetTask(ctx context.Context, projectID, taskID string) (store.Task, error) {
	if f.getTaskFn != nil {
		return f.getTaskFn(ctx, projectID, taskID)
	}
	return store.Task{}, sql.ErrNoRows
}
func (f *fakeStore) InsertTask(ctx context.Context, task store.Task) error {
	if f.insertTaskFn != nil {
		return f.insertTaskFn(ctx, task)
	}
	return nil
}
func (f *fakeStore) UpdateTask(ctx context.Context, projectID, taskID, title, targetDate, statusValue string) error {
	if f.updateTaskFn != nil {
		return f.updateTaskFn(ctx, projectID, taskID, title, targetDate, statusValue)
	}
	return nil
}
func (f *fakeStore) DeleteTask(context.Context, string, string) error { return nil }
func (f *fakeStore) ListMessages(ctx context.Context, projectID string) ([]store.Message, error) {
	if f.listMessagesFn != nil {
		return f.listMessagesFn(ctx, projectID)
	}
	return nil, nil
}
func (f *fakeStore) GetMessage(ctx context.Context, projectID, messageID string) (store.Message, error) {
	if f.getMessageFn != nil {
		return f.getMessageFn(ctx, projectID, messageID)
	}
	return store.Message{}, sql.ErrNoRows
}
func (f *fakeStore) InsertMessage(ctx context.Context, message store.Message) (time.Time, error) {
	if f.insertMessageFn != nil {
		return f.insertMessageFn(ctx, message)
	}
	return time.Now(), nil
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) {
	return false, nil
}
func (f *fakeStore) SummaryCounts(ctx context.Context, orgID string) (store.OrgSummary, error) {
	if f.summaryCountsFn != nil {
		return f.summaryCountsFn(ctx, orgID)
	}
	return store.OrgSummary{}, nil
}

type memSessions struct {
	saved map[string]store.RefreshIdentity
}

func (m *memSessions) SaveRefreshSession(_ context.Context, tokenHash string, ident store.RefreshIdentity, _ time.Time) error {
	if m.saved == nil {
		m.saved = map[string]store.RefreshIdentity{}
	}
	m.saved[tokenHash] = ident
	return nil
}
func (m *memSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.RefreshIdentity, error) {
	ident, ok := m.saved[tokenHash]
	if !ok {
		return store.RefreshIdentity{}, sql.ErrNoRows
	}
	return ident, nil
}
func (m *memSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(m.saved, tokenHash)
	return nil
}

type memAcks struct {
	acked map[notify.Scope]map[string]struct{}
}

func (m *memAcks) Acked(_ context.Context, scope notify.Scope) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for id := range m.acked[scope] {
		out[id] = struct{}{}
	}
	return out, nil
}
func (m *memAcks) Add(_ context.Context, scope notify.Scope, ids ...string) error {
	if m.acked == nil {
		m.acked = map[notify.Scope]map[string]struct{}{}
	}
	if m.acked[scope] == nil {
		m.acked[scope] = map[string]struct{}{}
	}
	for _, id := range ids {
		m.acked[scope][id] = struct{}{}
	}
	return nil
}

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
	s := &Service{
		cfg:      cfg,
		store:    fs,
		sessions: &memSessions{},
		identity: authpw.NewService(fs, nil, time.Second),
		acks:     &memAcks{},
	}
	s.export = export.NewService(reportStore{s})
	return s
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func adminSession(orgID string) Session {
	return Session{UserID: "user-admin", UserName: "Avery", Role: "admin", OrgID: orgID}
}

func TestLoginIssuesSessionForMatchingRole(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "user-1", DisplayName: "Avery", Email: email, PasswordHash: hashOf(t, "hunter22")}, nil
		},
		getMembershipFn: func(_ context.Context, orgID, userID, role string) (store.Member, error) {
			if orgID == "org-1" && userID == "user-1" && role == "admin" {
				return store.Member{UserID: userID, OrgID: orgID, Role: role}, nil
			}
			return store.Member{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs)

	session, err := svc.Login(context.Background(), "org-1", "avery@test.dev", "hunter22", "admin")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", session)
	}
	if session.Role != "admin" || session.OrgID != "org-1" {
		t.Fatalf("unexpected session scope: %+v", session)
	}
}

func TestLoginRefusesMissingRoleRecord(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "user-1", Email: email, PasswordHash: hashOf(t, "hunter22")}, nil
		},
		// The user exists with valid credentials but holds no employee
		// record in this organization.
	}
	svc := newTestService(fs)

	_, err := svc.Login(context.Background(), "org-1", "avery@test.dev", "hunter22", "employee")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != http.StatusForbidden || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected 403 FORBIDDEN, got %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestLoginRejectsUnknownRole(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.Login(context.Background(), "org-1", "avery@test.dev", "hunter22", "superuser")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "user-1", DisplayName: "Avery", Email: email, PasswordHash: hashOf(t, "hunter22")}, nil
		},
		getMembershipFn: func(_ context.Context, orgID, userID, role string) (store.Member, error) {
			return store.Member{UserID: userID, OrgID: orgID, Role: role}, nil
		},
	}
	svc := newTestService(fs)

	first, err := svc.Login(context.Background(), "org-1", "avery@test.dev", "hunter22", "admin")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected refresh token rotation")
	}
	// The old refresh token was revoked by the rotation.
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatalf("expected old refresh token to be rejected")
	}
}

func TestCompleteProjectRequiresConfirmWithPendingTasks(t *testing.T) {
	updated := ""
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Name: "Site", Status: "Active"}, nil
		},
		taskStatusesFn: func(context.Context, string) ([]string, error) {
			return []string{"Completed", "In Process", "Not Started"}, nil
		},
		updateProjectStatusFn: func(_ context.Context, _, _, statusValue string) error {
			updated = statusValue
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CompleteProject(context.Background(), "org-1", "proj-1", false)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != http.StatusConflict || domainErr.Code != "PENDING_TASKS" {
		t.Fatalf("expected 409 PENDING_TASKS, got %d %s", domainErr.Status, domainErr.Code)
	}
	details, ok := domainErr.Details.(map[string]any)
	if !ok || details["pending"] != 2 {
		t.Fatalf("expected pending count 2 in details, got %v", domainErr.Details)
	}
	if updated != "" {
		t.Fatalf("status must not change without confirmation, wrote %q", updated)
	}

	payload, err := svc.CompleteProject(context.Background(), "org-1", "proj-1", true)
	if err != nil {
		t.Fatalf("confirmed complete: %v", err)
	}
	if updated != "Completed" {
		t.Fatalf("expected status write Completed, got %q", updated)
	}
	if payload["status"] != "Completed" {
		t.Fatalf("expected payload status Completed, got %v", payload["status"])
	}
}

func TestCompleteProjectRejectsCancelled(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Cancelled"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CompleteProject(context.Background(), "org-1", "proj-1", true)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
}

func TestCancelProjectRevokesClientBestEffort(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Active"}, nil
		},
		deleteClientByProjectFn: func(context.Context, string, string) error {
			return errors.New("connection reset")
		},
	}
	svc := newTestService(fs)

	payload, err := svc.CancelProject(context.Background(), "org-1", "proj-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// The cancellation itself stands even when the revocation fails.
	if payload["status"] != "Cancelled" {
		t.Fatalf("expected Cancelled, got %v", payload["status"])
	}
	if payload["clientRevoked"] != false {
		t.Fatalf("expected clientRevoked false, got %v", payload["clientRevoked"])
	}
}

func TestCancelProjectIsIdempotent(t *testing.T) {
	wrote := false
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Cancelled"}, nil
		},
		updateProjectStatusFn: func(context.Context, string, string, string) error {
			wrote = true
			return nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.CancelProject(context.Background(), "org-1", "proj-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if wrote {
		t.Fatalf("cancelling a cancelled project must not write")
	}
	if payload["clientRevoked"] != true {
		t.Fatalf("expected clientRevoked true, got %v", payload["clientRevoked"])
	}
}

func TestTaskWritesFrozenUnderCompletedProject(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Completed"}, nil
		},
	}
	svc := newTestService(fs)
	session := adminSession("org-1")

	_, err := svc.CreateTask(context.Background(), session, "proj-1", TaskInput{Title: "Late addition"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != http.StatusConflict || domainErr.Code != "RESTRICTED" {
		t.Fatalf("expected 409 RESTRICTED, got %d %s", domainErr.Status, domainErr.Code)
	}

	if err := svc.DeleteTask(context.Background(), session, "proj-1", "task-1"); !errors.As(err, &domainErr) || domainErr.Code != "RESTRICTED" {
		t.Fatalf("expected RESTRICTED on delete, got %v", err)
	}
}

func TestTasksStayMutableUnderCancelledProject(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Cancelled"}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.CreateTask(context.Background(), adminSession("org-1"), "proj-1", TaskInput{Title: "Wrap up"})
	if err != nil {
		t.Fatalf("create task under cancelled project: %v", err)
	}
	if payload["status"] != "Not Started" {
		t.Fatalf("expected default status Not Started, got %v", payload["status"])
	}
}

func TestCreateTaskRejectsUnknownStatus(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Active"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateTask(context.Background(), adminSession("org-1"), "proj-1", TaskInput{Title: "X", Status: "Done"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestVisibleProjectsScopesByRole(t *testing.T) {
	all := []store.Project{
		{ID: "proj-1", OrgID: "org-1", AssigneeID: "user-emp"},
		{ID: "proj-2", OrgID: "org-1", AssigneeID: "user-other"},
	}
	fs := &fakeStore{
		listProjectsFn: func(context.Context, string) ([]store.Project, error) { return all, nil },
		listProjectsByAssigneeFn: func(_ context.Context, _, assigneeID string) ([]store.Project, error) {
			out := []store.Project{}
			for _, p := range all {
				if p.AssigneeID == assigneeID {
					out = append(out, p)
				}
			}
			return out, nil
		},
		getMembershipFn: func(_ context.Context, _, userID, role string) (store.Member, error) {
			if userID == "user-client" && role == "client" {
				return store.Member{UserID: userID, Role: role, ProjectID: "proj-2"}, nil
			}
			return store.Member{}, sql.ErrNoRows
		},
		getProjectFn: func(_ context.Context, _, projectID string) (store.Project, error) {
			for _, p := range all {
				if p.ID == projectID {
					return p, nil
				}
			}
			return store.Project{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs)

	adminProjects, err := svc.visibleProjects(context.Background(), adminSession("org-1"))
	if err != nil || len(adminProjects) != 2 {
		t.Fatalf("admin should see 2 projects, got %d err=%v", len(adminProjects), err)
	}

	empProjects, err := svc.visibleProjects(context.Background(), Session{UserID: "user-emp", Role: "employee", OrgID: "org-1"})
	if err != nil || len(empProjects) != 1 || empProjects[0].ID != "proj-1" {
		t.Fatalf("employee should see proj-1 only, got %+v err=%v", empProjects, err)
	}

	clientProjects, err := svc.visibleProjects(context.Background(), Session{UserID: "user-client", Role: "client", OrgID: "org-1"})
	if err != nil || len(clientProjects) != 1 || clientProjects[0].ID != "proj-2" {
		t.Fatalf("client should see proj-2 only, got %+v err=%v", clientProjects, err)
	}
}

func TestEmployeeCannotReachUnassignedProject(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, AssigneeID: "someone-else", Status: "Active"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.GetProject(context.Background(), Session{UserID: "user-emp", Role: "employee", OrgID: "org-1"}, "proj-1")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSendMessageTruncatesReplySnippet(t *testing.T) {
	longText := strings.Repeat("a", 80)
	var inserted store.Message
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Active"}, nil
		},
		getMessageFn: func(_ context.Context, _, messageID string) (store.Message, error) {
			return store.Message{ID: messageID, SenderName: "Jane Doe", Text: longText}, nil
		},
		insertMessageFn: func(_ context.Context, message store.Message) (time.Time, error) {
			inserted = message
			return time.Now(), nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.SendMessage(context.Background(), adminSession("org-1"), "proj-1", SendMessageInput{
		Text:      "agreed",
		ReplyToID: "msg-1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len([]rune(inserted.ReplyToSnippet)) != 50 {
		t.Fatalf("expected 50-rune snippet, got %d", len([]rune(inserted.ReplyToSnippet)))
	}
	replyTo, ok := payload["replyTo"].(map[string]any)
	if !ok {
		t.Fatalf("expected replyTo in payload, got %v", payload["replyTo"])
	}
	if replyTo["senderName"] != "Jane Doe" {
		t.Fatalf("expected quoted sender Jane Doe, got %v", replyTo["senderName"])
	}
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Active"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SendMessage(context.Background(), adminSession("org-1"), "proj-1", SendMessageInput{Text: "   "})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestNotificationsSkipSelfAndAcked(t *testing.T) {
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	projects := []store.Project{
		{ID: "proj-1", OrgID: "org-1", Name: "Site", LastMessageText: "hello", LastMessageSenderID: "user-other", LastMessageSenderName: "Jane Doe", LastMessageAt: &sentAt},
		{ID: "proj-2", OrgID: "org-1", Name: "App", LastMessageText: "mine", LastMessageSenderID: "user-admin", LastMessageSenderName: "Avery", LastMessageAt: &sentAt},
		{ID: "proj-3", OrgID: "org-1", Name: "Brand"},
	}
	fs := &fakeStore{
		listProjectsFn: func(context.Context, string) ([]store.Project, error) { return projects, nil },
	}
	svc := newTestService(fs)
	session := adminSession("org-1")

	items, err := svc.Notifications(context.Background(), session)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(items))
	}
	if items[0]["projectId"] != "proj-1" || items[0]["senderName"] != "Jane Doe" {
		t.Fatalf("unexpected notification: %v", items[0])
	}

	id, _ := items[0]["id"].(string)
	if err := svc.AckNotification(context.Background(), session, id); err != nil {
		t.Fatalf("ack: %v", err)
	}
	items, err = svc.Notifications(context.Background(), session)
	if err != nil {
		t.Fatalf("notifications after ack: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no notifications after ack, got %d", len(items))
	}
}

func TestAckScopesAreIndependentPerViewer(t *testing.T) {
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	projects := []store.Project{
		{ID: "proj-1", OrgID: "org-1", Name: "Site", LastMessageText: "hello", LastMessageSenderID: "user-other", LastMessageSenderName: "Jane Doe", LastMessageAt: &sentAt},
	}
	fs := &fakeStore{
		listProjectsFn: func(context.Context, string) ([]store.Project, error) { return projects, nil },
	}
	svc := newTestService(fs)

	first := Session{UserID: "user-a", Role: "admin", OrgID: "org-1"}
	second := Session{UserID: "user-b", Role: "admin", OrgID: "org-1"}

	count, err := svc.AckAllNotifications(context.Background(), first)
	if err != nil || count != 1 {
		t.Fatalf("ack all: count=%d err=%v", count, err)
	}
	items, err := svc.Notifications(context.Background(), second)
	if err != nil || len(items) != 1 {
		t.Fatalf("second viewer should still see the notification, got %d err=%v", len(items), err)
	}
}

func TestNotificationResurfacesOnNewerMessage(t *testing.T) {
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	project := store.Project{ID: "proj-1", OrgID: "org-1", Name: "Site", LastMessageText: "hello", LastMessageSenderID: "user-other", LastMessageSenderName: "Jane Doe", LastMessageAt: &sentAt}
	fs := &fakeStore{
		listProjectsFn: func(context.Context, string) ([]store.Project, error) {
			return []store.Project{project}, nil
		},
	}
	svc := newTestService(fs)
	session := adminSession("org-1")

	if _, err := svc.AckAllNotifications(context.Background(), session); err != nil {
		t.Fatalf("ack all: %v", err)
	}

	later := sentAt.Add(time.Minute)
	project.LastMessageText = "one more thing"
	project.LastMessageAt = &later

	items, err := svc.Notifications(context.Background(), session)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("newer message should resurface, got %d", len(items))
	}
}

func TestProjectPayloadProgress(t *testing.T) {
	fs := &fakeStore{
		taskStatusesFn: func(context.Context, string) ([]string, error) {
			return []string{"Completed", "Completed", "In Process"}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.projectPayload(context.Background(), store.Project{ID: "proj-1", Status: "Active"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["progress"] != 67 {
		t.Fatalf("expected progress 67, got %v", payload["progress"])
	}
	if payload["pendingTasks"] != 1 {
		t.Fatalf("expected 1 pending task, got %v", payload["pendingTasks"])
	}
}

func TestCreateEmployeeReturnsInitialPasswordWithoutSMTP(t *testing.T) {
	var createdMember store.Member
	fs := &fakeStore{
		createMemberFn: func(_ context.Context, member store.Member) error {
			createdMember = member
			return nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.CreateEmployee(context.Background(), "org-1", CreateEmployeeInput{
		Name:    "Jordan Lee",
		Email:   "Jordan@Test.dev",
		Phone:   "555-0142",
		Address: "12 Harbor Lane",
	})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	if createdMember.Role != "employee" || createdMember.Phone != "555-0142" || createdMember.Address != "12 Harbor Lane" {
		t.Fatalf("unexpected member: %+v", createdMember)
	}
	password, _ := payload["initialPassword"].(string)
	if password == "" {
		t.Fatalf("expected generated password in payload when SMTP is absent")
	}
	if payload["email"] != "jordan@test.dev" {
		t.Fatalf("expected normalized email, got %v", payload["email"])
	}
}

func TestEmployeeListingCarriesContactDetails(t *testing.T) {
	fs := &fakeStore{
		listEmployeesFn: func(context.Context, string) ([]store.Member, error) {
			return []store.Member{{
				UserID:  "user-emp",
				Name:    "Jordan Lee",
				Email:   "jordan@test.dev",
				Phone:   "555-0142",
				Address: "12 Harbor Lane",
			}}, nil
		},
	}
	svc := newTestService(fs)

	items, err := svc.ListEmployees(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("list employees: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one employee, got %d", len(items))
	}
	got := items[0]
	if got["email"] != "jordan@test.dev" || got["phone"] != "555-0142" || got["address"] != "12 Harbor Lane" {
		t.Fatalf("listing missing contact details: %v", got)
	}
}

func TestCreateProjectValidatesAssignee(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	_, err := svc.CreateProject(context.Background(), "org-1", CreateProjectInput{
		Name:        "Site",
		ClientName:  "Jane Doe",
		ClientEmail: "jane@client.dev",
		AssigneeID:  "user-ghost",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for unknown assignee, got %v", err)
	}
}

func TestCreateProjectCarriesPaymentAmounts(t *testing.T) {
	var createdProject store.Project
	fs := &fakeStore{
		createProjectWithClientFn: func(_ context.Context, project store.Project, _ store.Member) error {
			createdProject = project
			return nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.CreateProject(context.Background(), "org-1", CreateProjectInput{
		Name:         "Site",
		Amount:       "5000",
		ClientAmount: "10000",
		ClientName:   "Jane Doe",
		ClientEmail:  "jane@client.dev",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if createdProject.Amount != "5000" || createdProject.ClientAmount != "10000" {
		t.Fatalf("amounts not persisted: %+v", createdProject)
	}
	if payload["amount"] != "5000" || payload["clientAmount"] != "10000" {
		t.Fatalf("payload missing amounts: %v", payload)
	}
}

func TestTaskCarriesTargetDate(t *testing.T) {
	var inserted store.Task
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Active"}, nil
		},
		insertTaskFn: func(_ context.Context, task store.Task) error {
			inserted = task
			return nil
		},
		getTaskFn: func(_ context.Context, projectID, taskID string) (store.Task, error) {
			return store.Task{ID: taskID, ProjectID: projectID, Title: "Wireframes", TargetDate: "2026-09-15", Status: "Not Started"}, nil
		},
		updateTaskFn: func(_ context.Context, _, _, _, targetDate, _ string) error {
			if targetDate != "2026-10-01" {
				t.Fatalf("update wrote target date %q", targetDate)
			}
			return nil
		},
	}
	svc := newTestService(fs)
	session := adminSession("org-1")

	payload, err := svc.CreateTask(context.Background(), session, "proj-1", TaskInput{Title: "Wireframes", Date: "2026-09-15"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if inserted.TargetDate != "2026-09-15" || payload["date"] != "2026-09-15" {
		t.Fatalf("target date dropped: task=%+v payload=%v", inserted, payload)
	}

	payload, err = svc.UpdateTask(context.Background(), session, "proj-1", "task-1", TaskInput{Date: "2026-10-01"})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if payload["date"] != "2026-10-01" {
		t.Fatalf("updated date missing from payload: %v", payload)
	}
}

func TestUpdateTaskKeepsDateWhenOmitted(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(_ context.Context, orgID, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, OrgID: orgID, Status: "Active"}, nil
		},
		getTaskFn: func(_ context.Context, projectID, taskID string) (store.Task, error) {
			return store.Task{ID: taskID, ProjectID: projectID, Title: "Wireframes", TargetDate: "2026-09-15", Status: "Not Started"}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.UpdateTask(context.Background(), adminSession("org-1"), "proj-1", "task-1", TaskInput{Status: "In Process"})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if payload["date"] != "2026-09-15" {
		t.Fatalf("omitted date should keep stored value, got %v", payload["date"])
	}
}

func TestProgressRoundsAndHandlesEmpty(t *testing.T) {
	fs := &fakeStore{
		taskStatusesFn: func(context.Context, string) ([]string, error) { return nil, nil },
	}
	svc := newTestService(fs)

	payload, err := svc.projectPayload(context.Background(), store.Project{ID: "proj-1"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["progress"] != 0 {
		t.Fatalf("expected 0 progress for no tasks, got %v", payload["progress"])
	}
}
