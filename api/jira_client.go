package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"excel2jira/config"
	"excel2jira/models"
	"excel2jira/utils"
)

const (
	searchPageSize = 50
	usersPageSize  = 1000
)

// RemoteError is returned for any failed call to the Jira API
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: jira API returned %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether Jira rejected the credentials
func (e *RemoteError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Project is the subset of a Jira project the tool reads
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// JiraClient talks to the Jira REST API v2
type JiraClient struct {
	baseURL  string
	email    string
	apiToken string
	client   *http.Client
}

// NewJiraClient creates a client from the configured credentials
func NewJiraClient(cfg *config.Config) *JiraClient {
	return &JiraClient{
		baseURL:  strings.TrimRight(cfg.JiraURL, "/"),
		email:    cfg.JiraEmail,
		apiToken: cfg.JiraAPIToken,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CheckAuth verifies the credentials and returns the authenticated account
func (j *JiraClient) CheckAuth(ctx context.Context) (*models.User, error) {
	var me models.User
	if err := j.getJSON(ctx, "check auth", "/rest/api/2/myself", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetProject fetches a project by key
func (j *JiraClient) GetProject(ctx context.Context, key string) (*Project, error) {
	var project Project
	path := "/rest/api/2/project/" + url.PathEscape(key)
	if err := j.getJSON(ctx, "get project "+key, path, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// FindExisting looks for an issue in project whose summary equals summary,
// ignoring case. The JQL text search narrows the candidates, the exact
// comparison decides. A summary with no searchable text scans the project.
func (j *JiraClient) FindExisting(ctx context.Context, project, summary string) (string, bool, error) {
	jql := fmt.Sprintf(`project = "%s"`, escapeJQL(project))
	if text := escapeTextSearch(summary); text != "" {
		jql += fmt.Sprintf(` AND summary ~ "%s"`, escapeJQL(text))
	}
	want := normalizeSummary(summary)

	startAt := 0
	for {
		params := url.Values{
			"jql":        {jql},
			"fields":     {"summary"},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(searchPageSize)},
		}

		var result struct {
			StartAt int `json:"startAt"`
			Total   int `json:"total"`
			Issues  []struct {
				Key    string `json:"key"`
				Fields struct {
					Summary string `json:"summary"`
				} `json:"fields"`
			} `json:"issues"`
		}
		if err := j.getJSON(ctx, "search issues", "/rest/api/2/search", params, &result); err != nil {
			return "", false, err
		}

		for _, issue := range result.Issues {
			if normalizeSummary(issue.Fields.Summary) == want {
				return issue.Key, true, nil
			}
		}

		if len(result.Issues) == 0 || startAt+len(result.Issues) >= result.Total {
			return "", false, nil
		}
		startAt += len(result.Issues)
	}
}

// CreateIssue creates an issue and returns its key
func (j *JiraClient) CreateIssue(ctx context.Context, fields map[string]interface{}) (string, error) {
	payload := map[string]interface{}{"fields": fields}

	body, err := j.do(ctx, "create issue", http.MethodPost, "/rest/api/2/issue", nil, payload)
	if err != nil {
		return "", err
	}

	var result struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &RemoteError{Op: "create issue", Err: fmt.Errorf("parse response: %w", err)}
	}
	if result.Key == "" {
		return "", &RemoteError{Op: "create issue", Err: fmt.Errorf("response has no issue key")}
	}

	return result.Key, nil
}

// UpdateIssue sets fields on an existing issue
func (j *JiraClient) UpdateIssue(ctx context.Context, key string, fields map[string]interface{}) error {
	payload := map[string]interface{}{"fields": fields}
	path := "/rest/api/2/issue/" + url.PathEscape(key)

	_, err := j.do(ctx, "update issue "+key, http.MethodPut, path, nil, payload)
	return err
}

// GetIssueFields returns the raw values of the named fields of an issue
func (j *JiraClient) GetIssueFields(ctx context.Context, key string, names []string) (map[string]json.RawMessage, error) {
	params := url.Values{"fields": {strings.Join(names, ",")}}
	path := "/rest/api/2/issue/" + url.PathEscape(key)

	var result struct {
		Fields map[string]json.RawMessage `json:"fields"`
	}
	if err := j.getJSON(ctx, "get issue "+key, path, params, &result); err != nil {
		return nil, err
	}
	if result.Fields == nil {
		result.Fields = map[string]json.RawMessage{}
	}

	return result.Fields, nil
}

// AssignIssue sets the assignee of an issue
func (j *JiraClient) AssignIssue(ctx context.Context, key, accountID string) error {
	payload := map[string]string{"accountId": accountID}
	path := "/rest/api/2/issue/" + url.PathEscape(key) + "/assignee"

	_, err := j.do(ctx, "assign issue "+key, http.MethodPut, path, nil, payload)
	return err
}

// ListUsers returns every active human account visible to the caller
func (j *JiraClient) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User

	startAt := 0
	for {
		params := url.Values{
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(usersPageSize)},
		}

		var page []models.User
		if err := j.getJSON(ctx, "list users", "/rest/api/2/users/search", params, &page); err != nil {
			return nil, err
		}

		for _, u := range page {
			if !u.Active {
				continue
			}
			if u.AccountType != "" && u.AccountType != "atlassian" {
				continue
			}
			users = append(users, u)
		}

		if len(page) < usersPageSize {
			break
		}
		startAt += len(page)
	}

	utils.LogDebug("Loaded %d Jira users", len(users))
	return users, nil
}

// AllowedValues returns the options of a select-list field for a project and issue type
func (j *JiraClient) AllowedValues(ctx context.Context, project, issueType, fieldID string) ([]models.FieldOption, error) {
	params := url.Values{
		"projectKeys":    {project},
		"issuetypeNames": {issueType},
		"expand":         {"projects.issuetypes.fields"},
	}

	var meta struct {
		Projects []struct {
			Key        string `json:"key"`
			IssueTypes []struct {
				Name   string `json:"name"`
				Fields map[string]struct {
					AllowedValues []models.FieldOption `json:"allowedValues"`
				} `json:"fields"`
			} `json:"issuetypes"`
		} `json:"projects"`
	}

	op := fmt.Sprintf("create metadata %s/%s", project, issueType)
	if err := j.getJSON(ctx, op, "/rest/api/2/issue/createmeta", params, &meta); err != nil {
		return nil, err
	}

	for _, p := range meta.Projects {
		for _, it := range p.IssueTypes {
			if field, ok := it.Fields[fieldID]; ok {
				return field.AllowedValues, nil
			}
		}
	}

	return nil, &RemoteError{Op: op, Err: fmt.Errorf("field %s not found on the create screen", fieldID)}
}

func (j *JiraClient) getJSON(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	body, err := j.do(ctx, op, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &RemoteError{Op: op, Err: fmt.Errorf("parse response: %w", err)}
	}

	return nil
}

// do executes an authenticated request and returns the response body
func (j *JiraClient) do(ctx context.Context, op, method, path string, params url.Values, payload interface{}) ([]byte, error) {
	endpoint := j.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &RemoteError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}

	req.SetBasicAuth(j.email, j.apiToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	utils.LogDebug("%s %s", method, path)

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// escapeJQL escapes a value for use inside a double-quoted JQL string
func escapeJQL(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// escapeTextSearch drops characters reserved by the Lucene text search behind "~"
func escapeTextSearch(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '+', '-', '&', '|', '!', '(', ')', '{', '}', '[', ']', '^', '~', '*', '?', ':', '\\', '/':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func normalizeSummary(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
