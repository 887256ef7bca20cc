package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across projects and employees using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Projects sub-query
	if q.FilterType == "" || q.FilterType == ResultProject {
		projWhere := "p.fts @@ " + tsQuery
		if q.OrgID != "" {
			projWhere += fmt.Sprintf(" AND p.org_id = $%d", argN)
			args = append(args, q.OrgID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id, p.name AS title,
				ts_headline('english', coalesce(p.client_name, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.org_id, p.status,
				ts_rank(p.fts, %s) AS rank
			FROM projects p
			WHERE %s`, tsQuery, tsQuery, projWhere))
	}

	// Employees sub-query
	if q.FilterType == "" || q.FilterType == ResultEmployee {
		empWhere := "u.fts @@ " + tsQuery + " AND m.role = 'employee'"
		if q.OrgID != "" {
			empWhere += fmt.Sprintf(" AND m.org_id = $%d", argN)
			args = append(args, q.OrgID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'employee'::text AS type, u.id, u.display_name AS title,
				coalesce(nullif(m.phone, ''), u.email) AS snippet,
				m.org_id, ''::text AS status,
				ts_rank(u.fts, %s) AS rank
			FROM users u
			JOIN org_members m ON m.user_id = u.id
			WHERE %s`, tsQuery, empWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, org_id, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.OrgID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []EmployeeRecord, error) {
	projRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(client_name, ''),
			coalesce(client_email, ''), coalesce(assignee_name, ''), status, org_id
		FROM projects
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projRows.Close()

	projects := make([]ProjectRecord, 0)
	for projRows.Next() {
		var p ProjectRecord
		if err := projRows.Scan(&p.ID, &p.Name, &p.ClientName, &p.ClientEmail, &p.AssigneeName, &p.Status, &p.OrgID); err != nil {
			return nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := projRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	empRows, err := p.db.QueryContext(ctx, `
		SELECT u.id, u.display_name, u.email, coalesce(m.phone, ''), coalesce(m.address, ''), m.org_id
		FROM users u
		JOIN org_members m ON m.user_id = u.id
		WHERE m.role = 'employee'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load employees: %w", err)
	}
	defer empRows.Close()

	employees := make([]EmployeeRecord, 0)
	for empRows.Next() {
		var e EmployeeRecord
		if err := empRows.Scan(&e.ID, &e.Name, &e.Email, &e.Phone, &e.Address, &e.OrgID); err != nil {
			return nil, nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := empRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate employees: %w", err)
	}

	return projects, employees, nil
}
