package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject  ResultType = "project"
	ResultEmployee ResultType = "employee"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	OrgID   string     `json:"orgId"`
	Status  string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	OrgID      string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexProject(p ProjectRecord) error
	IndexEmployee(e EmployeeRecord) error
	DeleteProject(id string) error
	DeleteEmployee(id string) error
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ClientName   string `json:"clientName"`
	ClientEmail  string `json:"clientEmail"`
	AssigneeName string `json:"assigneeName"`
	Status       string `json:"status"`
	OrgID        string `json:"orgId"`
}

// EmployeeRecord is the data we index for an employee.
type EmployeeRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	OrgID   string `json:"orgId"`
}
