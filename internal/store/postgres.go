package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, theme_primary, theme_accent, created_at
		FROM organizations
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	items := make([]Organization, 0)
	for rows.Next() {
		var item Organization
		if err := rows.Scan(&item.ID, &item.Name, &item.ThemePrimary, &item.ThemeAccent, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	var item Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, theme_primary, theme_accent, created_at
		FROM organizations
		WHERE id=$1
	`, orgID).Scan(&item.ID, &item.Name, &item.ThemePrimary, &item.ThemeAccent, &item.CreatedAt)
	if err != nil {
		return Organization{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertOrganization(ctx context.Context, org Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, org.ID, org.Name)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users
		WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserName(ctx context.Context, userID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name=$2, updated_at=NOW() WHERE id=$1
	`, userID, displayName)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return nil
}

const memberColumns = `
	m.user_id, m.org_id, m.role, m.phone, m.address, COALESCE(m.project_id, ''),
	m.created_at, m.updated_at, u.display_name, u.email
`

func (s *PostgresStore) GetMembership(ctx context.Context, orgID, userID, role string) (Member, error) {
	var item Member
	err := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM org_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.org_id=$1 AND m.user_id=$2 AND m.role=$3
	`, orgID, userID, role).Scan(
		&item.UserID, &item.OrgID, &item.Role, &item.Phone, &item.Address, &item.ProjectID,
		&item.CreatedAt, &item.UpdatedAt, &item.Name, &item.Email,
	)
	if err != nil {
		return Member{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListEmployees(ctx context.Context, orgID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM org_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.org_id=$1 AND m.role='employee'
		ORDER BY u.display_name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	items := make([]Member, 0)
	for rows.Next() {
		var item Member
		if err := rows.Scan(
			&item.UserID, &item.OrgID, &item.Role, &item.Phone, &item.Address, &item.ProjectID,
			&item.CreatedAt, &item.UpdatedAt, &item.Name, &item.Email,
		); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateMember(ctx context.Context, member Member) error {
	var projectID any
	if member.ProjectID != "" {
		projectID = member.ProjectID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_members (user_id, org_id, role, phone, address, project_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (org_id, user_id, role) DO UPDATE SET phone=EXCLUDED.phone, address=EXCLUDED.address, project_id=EXCLUDED.project_id, updated_at=NOW()
	`, member.UserID, member.OrgID, member.Role, member.Phone, member.Address, projectID)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEmployee(ctx context.Context, orgID, userID, name, phone, address string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update employee: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE org_members SET phone=$3, address=$4, updated_at=NOW()
		WHERE org_id=$1 AND user_id=$2 AND role='employee'
	`, orgID, userID, phone, address)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update employee: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET display_name=$2, updated_at=NOW() WHERE id=$1
	`, userID, name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update employee name: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update employee: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMember(ctx context.Context, orgID, userID, role string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM org_members WHERE org_id=$1 AND user_id=$2 AND role=$3
	`, orgID, userID, role)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteClientByProject(ctx context.Context, orgID, projectID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM org_members WHERE org_id=$1 AND role='client' AND project_id=$2
	`, orgID, projectID)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const projectColumns = `
	id, org_id, name, client_name, client_email, amount, client_amount,
	status, COALESCE(assignee_id, ''), COALESCE(assignee_name, ''),
	COALESCE(last_message_text, ''), COALESCE(last_message_sender_id, ''),
	COALESCE(last_message_sender_name, ''), last_message_at, created_at, updated_at
`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var item Project
	err := row.Scan(
		&item.ID, &item.OrgID, &item.Name, &item.ClientName,
		&item.ClientEmail, &item.Amount, &item.ClientAmount, &item.Status,
		&item.AssigneeID, &item.AssigneeName,
		&item.LastMessageText, &item.LastMessageSenderID, &item.LastMessageSenderName,
		&item.LastMessageAt, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListProjects(ctx context.Context, orgID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE org_id=$1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListProjectsByAssignee(ctx context.Context, orgID, assigneeID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE org_id=$1 AND assignee_id=$2
		ORDER BY created_at DESC
	`, orgID, assigneeID)
	if err != nil {
		return nil, fmt.Errorf("list assigned projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, orgID, projectID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE org_id=$1 AND id=$2
	`, orgID, projectID)
	item, err := scanProject(row)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

// CreateProjectWithClient writes the project and its client role record in
// one transaction, so a half-provisioned project never becomes visible.
func (s *PostgresStore) CreateProjectWithClient(ctx context.Context, project Project, client Member) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	var assigneeID any
	if project.AssigneeID != "" {
		assigneeID = project.AssigneeID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, org_id, name, client_name, client_email, amount, client_amount, status, assignee_id, assignee_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, project.ID, project.OrgID, project.Name, project.ClientName,
		project.ClientEmail, project.Amount, project.ClientAmount, project.Status,
		assigneeID, project.AssigneeName); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO org_members (user_id, org_id, role, phone, address, project_id)
		VALUES ($1, $2, 'client', '', '', $3)
	`, client.UserID, client.OrgID, project.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert client member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProjectStatus(ctx context.Context, orgID, projectID, statusValue string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET status=$3, updated_at=NOW() WHERE org_id=$1 AND id=$2
	`, orgID, projectID, statusValue)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, target_date, status, created_at, updated_at
		FROM tasks
		WHERE project_id=$1
		ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		var item Task
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Title, &item.TargetDate, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) TaskStatuses(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status FROM tasks WHERE project_id=$1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("task statuses: %w", err)
	}
	defer rows.Close()

	statuses := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan task status: %w", err)
		}
		statuses = append(statuses, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task statuses: %w", err)
	}
	return statuses, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, projectID, taskID string) (Task, error) {
	var item Task
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, target_date, status, created_at, updated_at
		FROM tasks
		WHERE project_id=$1 AND id=$2
	`, projectID, taskID).Scan(&item.ID, &item.ProjectID, &item.Title, &item.TargetDate, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, target_date, status)
		VALUES ($1, $2, $3, $4, $5)
	`, task.ID, task.ProjectID, task.Title, task.TargetDate, task.Status)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, projectID, taskID, title, targetDate, statusValue string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title=$3, target_date=$4, status=$5, updated_at=NOW()
		WHERE project_id=$1 AND id=$2
	`, projectID, taskID, title, targetDate, statusValue)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, projectID, taskID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE project_id=$1 AND id=$2
	`, projectID, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, projectID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, sender_id, sender_name, sender_role, text,
			COALESCE(reply_to_id, ''), COALESCE(reply_to_sender, ''), COALESCE(reply_to_snippet, ''),
			created_at
		FROM messages
		WHERE project_id=$1
		ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(
			&item.ID, &item.ProjectID, &item.SenderID, &item.SenderName, &item.SenderRole,
			&item.Text, &item.ReplyToID, &item.ReplyToSender, &item.ReplyToSnippet, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, projectID, messageID string) (Message, error) {
	var item Message
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, sender_id, sender_name, sender_role, text,
			COALESCE(reply_to_id, ''), COALESCE(reply_to_sender, ''), COALESCE(reply_to_snippet, ''),
			created_at
		FROM messages
		WHERE project_id=$1 AND id=$2
	`, projectID, messageID).Scan(
		&item.ID, &item.ProjectID, &item.SenderID, &item.SenderName, &item.SenderRole,
		&item.Text, &item.ReplyToID, &item.ReplyToSender, &item.ReplyToSnippet, &item.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	return item, nil
}

// InsertMessage appends a message and refreshes the project's denormalized
// last-message columns in the same transaction. The message path is the
// only writer of those columns.
func (s *PostgresStore) InsertMessage(ctx context.Context, message Message) (time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("begin insert message: %w", err)
	}
	var replyToID, replyToSender, replyToSnippet any
	if message.ReplyToID != "" {
		replyToID = message.ReplyToID
		replyToSender = message.ReplyToSender
		replyToSnippet = message.ReplyToSnippet
	}
	var sentAt time.Time
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, project_id, sender_id, sender_name, sender_role, text, reply_to_id, reply_to_sender, reply_to_snippet)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, message.ID, message.ProjectID, message.SenderID, message.SenderName, message.SenderRole,
		message.Text, replyToID, replyToSender, replyToSnippet).Scan(&sentAt); err != nil {
		_ = tx.Rollback()
		return time.Time{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE projects
		SET last_message_text=$2, last_message_sender_id=$3, last_message_sender_name=$4, last_message_at=$5, updated_at=NOW()
		WHERE id=$1
	`, message.ProjectID, message.Text, message.SenderID, message.SenderName, sentAt); err != nil {
		_ = tx.Rollback()
		return time.Time{}, fmt.Errorf("touch project last message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("commit insert message: %w", err)
	}
	return sentAt, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, ident RefreshIdentity, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, org_id, role, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, org_id=EXCLUDED.org_id, role=EXCLUDED.role, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, ident.UserID, ident.OrgID, ident.Role, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (RefreshIdentity, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, rs.org_id, rs.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var ident RefreshIdentity
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&ident.UserID, &ident.DisplayName, &ident.Email, &ident.OrgID, &ident.Role)
	if err != nil {
		return RefreshIdentity{}, err
	}
	return ident, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// AckedNotifications is the Postgres fallback for the notification ack set.
func (s *PostgresStore) AckedNotifications(ctx context.Context, orgID, role, viewerID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT notification_id
		FROM notification_acks
		WHERE org_id=$1 AND role=$2 AND viewer_id=$3
	`, orgID, role, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list notification acks: %w", err)
	}
	defer rows.Close()

	acked := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan notification ack: %w", err)
		}
		acked[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification acks: %w", err)
	}
	return acked, nil
}

func (s *PostgresStore) AddNotificationAcks(ctx context.Context, orgID, role, viewerID string, ids []string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO notification_acks (org_id, role, viewer_id, notification_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, orgID, role, viewerID, id); err != nil {
			return fmt.Errorf("insert notification ack: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SummaryCounts(ctx context.Context, orgID string) (OrgSummary, error) {
	var summary OrgSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM org_members WHERE org_id=$1 AND role='employee'),
			(SELECT COUNT(*) FROM projects WHERE org_id=$1 AND created_at >= date_trunc('month', NOW())),
			(SELECT COUNT(*) FROM projects WHERE org_id=$1 AND status='Active'),
			(SELECT COUNT(*) FROM projects WHERE org_id=$1 AND status='Completed'),
			(SELECT COUNT(*) FROM projects WHERE org_id=$1 AND status='Cancelled')
	`, orgID).Scan(&summary.Employees, &summary.ProjectsThisMonth, &summary.Active, &summary.Completed, &summary.Cancelled)
	if err != nil {
		return OrgSummary{}, fmt.Errorf("summary counts: %w", err)
	}
	return summary, nil
}
