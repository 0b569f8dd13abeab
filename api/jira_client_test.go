package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"excel2jira/config"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *JiraClient {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bot@example.com" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	return NewJiraClient(&config.Config{
		JiraURL:      server.URL + "/",
		JiraEmail:    "bot@example.com",
		JiraAPIToken: "secret",
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestCheckAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/myself", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"accountId": "abc", "displayName": "Import Bot", "active": true})
	})
	client := newTestClient(t, mux)

	me, err := client.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Import Bot", me.DisplayName)
	assert.Equal(t, "abc", me.AccountID)
}

func TestCheckAuthRejected(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	client.apiToken = "wrong"

	_, err := client.CheckAuth(context.Background())
	require.Error(t, err)

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)
	assert.True(t, remote.Unauthorized())
}

func TestTransportFailureIsRemoteError(t *testing.T) {
	client := NewJiraClient(&config.Config{JiraURL: "http://127.0.0.1:1"})

	_, err := client.GetProject(context.Background(), "ITDVPS")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 0, remote.StatusCode)
	assert.NotNil(t, remote.Err)
}

func TestFindExisting(t *testing.T) {
	var gotJQL string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		gotJQL = r.URL.Query().Get("jql")
		writeJSON(w, map[string]interface{}{
			"startAt": 0,
			"total":   2,
			"issues": []map[string]interface{}{
				{"key": "ITDVPS-1", "fields": map[string]string{"summary": "Migrate DB to Postgres"}},
				{"key": "ITDVPS-2", "fields": map[string]string{"summary": "migrate  db"}},
			},
		})
	})
	client := newTestClient(t, mux)

	key, found, err := client.FindExisting(context.Background(), "ITDVPS", "Migrate DB")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ITDVPS-2", key)
	assert.Equal(t, `project = "ITDVPS" AND summary ~ "Migrate DB"`, gotJQL)

	// a text-search hit that is not an exact match does not count
	_, found, err = client.FindExisting(context.Background(), "ITDVPS", "Migrate")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindExistingPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		issue := map[string]interface{}{
			"key":    fmt.Sprintf("ITDVPS-%d", startAt+1),
			"fields": map[string]string{"summary": fmt.Sprintf("Item %d", startAt+1)},
		}
		writeJSON(w, map[string]interface{}{
			"startAt": startAt,
			"total":   3,
			"issues":  []map[string]interface{}{issue},
		})
	})
	client := newTestClient(t, mux)

	key, found, err := client.FindExisting(context.Background(), "ITDVPS", "item 3")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ITDVPS-3", key)

	_, found, err = client.FindExisting(context.Background(), "ITDVPS", "item 4")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindExistingWithoutSearchableText(t *testing.T) {
	var gotJQL string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		gotJQL = r.URL.Query().Get("jql")
		writeJSON(w, map[string]interface{}{
			"startAt": 0,
			"total":   2,
			"issues": []map[string]interface{}{
				{"key": "ITDVPS-7", "fields": map[string]string{"summary": "Migrate DB"}},
				{"key": "ITDVPS-8", "fields": map[string]string{"summary": "???"}},
			},
		})
	})
	client := newTestClient(t, mux)

	key, found, err := client.FindExisting(context.Background(), "ITDVPS", "???")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ITDVPS-8", key)
	assert.Equal(t, `project = "ITDVPS"`, gotJQL)

	_, found, err = client.FindExisting(context.Background(), "ITDVPS", "C++ / *")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, `project = "ITDVPS"`, gotJQL)
}

func TestCreateIssue(t *testing.T) {
	var got map[string]map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/issue", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"id": "10001", "key": "ITDVPS-42"})
	})
	client := newTestClient(t, mux)

	key, err := client.CreateIssue(context.Background(), map[string]interface{}{
		"summary": "Migrate DB",
		"project": map[string]string{"key": "ITDVPS"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ITDVPS-42", key)
	assert.Equal(t, "Migrate DB", got["fields"]["summary"])
}

func TestCreateIssueRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/issue", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errors":{"customfield_10269":"Field cannot be set"}}`)
	})
	client := newTestClient(t, mux)

	_, err := client.CreateIssue(context.Background(), map[string]interface{}{"summary": "x"})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadRequest, remote.StatusCode)
	assert.Contains(t, err.Error(), "Field cannot be set")
	assert.False(t, remote.Unauthorized())
}

func TestUpdateAndAssign(t *testing.T) {
	var updated, assigned map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/issue/ITDVPS-7", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/rest/api/2/issue/ITDVPS-7/assignee", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&assigned))
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, mux)

	err := client.UpdateIssue(context.Background(), "ITDVPS-7", map[string]interface{}{"parent": map[string]string{"key": "ITDVPS-1"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"parent": map[string]interface{}{"key": "ITDVPS-1"}}, updated["fields"])

	require.NoError(t, client.AssignIssue(context.Background(), "ITDVPS-7", "acc-1"))
	assert.Equal(t, "acc-1", assigned["accountId"])
}

func TestGetIssueFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/issue/ITDVPS-7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "description,labels", r.URL.Query().Get("fields"))
		_, _ = io.WriteString(w, `{"key":"ITDVPS-7","fields":{"description":null,"labels":["a"]}}`)
	})
	client := newTestClient(t, mux)

	fields, err := client.GetIssueFields(context.Background(), "ITDVPS-7", []string{"description", "labels"})
	require.NoError(t, err)
	assert.Equal(t, "null", string(fields["description"]))
	assert.JSONEq(t, `["a"]`, string(fields["labels"]))
}

func TestListUsersFiltersAndPaginates(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/users/search", func(w http.ResponseWriter, r *http.Request) {
		calls++
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		if startAt == 0 {
			page := make([]map[string]interface{}, usersPageSize)
			for i := range page {
				page[i] = map[string]interface{}{"accountId": fmt.Sprintf("app-%d", i), "accountType": "app", "active": true}
			}
			page[0] = map[string]interface{}{"accountId": "u1", "accountType": "atlassian", "displayName": "Jonathan Smith", "active": true}
			page[1] = map[string]interface{}{"accountId": "u2", "accountType": "atlassian", "displayName": "Gone User", "active": false}
			writeJSON(w, page)
			return
		}
		writeJSON(w, []map[string]interface{}{
			{"accountId": "u3", "accountType": "atlassian", "displayName": "Jane Doe", "active": true},
		})
	})
	client := newTestClient(t, mux)

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].AccountID)
	assert.Equal(t, "u3", users[1].AccountID)
	assert.Equal(t, 2, calls)
}

func TestAllowedValues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/issue/createmeta", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ITDVPS", q.Get("projectKeys"))
		assert.Equal(t, "Epic", q.Get("issuetypeNames"))
		assert.Equal(t, "projects.issuetypes.fields", q.Get("expand"))
		_, _ = io.WriteString(w, `{"projects":[{"key":"ITDVPS","issuetypes":[{"name":"Epic","fields":{
			"customfield_10257":{"allowedValues":[{"id":"1","value":"Q1"},{"id":"3","value":"Q3"}]}
		}}]}]}`)
	})
	client := newTestClient(t, mux)

	options, err := client.AllowedValues(context.Background(), "ITDVPS", "Epic", "customfield_10257")
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "3", options[1].ID)
	assert.Equal(t, "Q3", options[1].Value)

	_, err = client.AllowedValues(context.Background(), "ITDVPS", "Epic", "customfield_99999")
	var remote *RemoteError
	assert.ErrorAs(t, err, &remote)
}

func TestEscapeTextSearch(t *testing.T) {
	assert.Equal(t, "Q3 plan rollout", escapeTextSearch("Q3 plan: [rollout]"))
	assert.Equal(t, `say \"hi\"`, escapeJQL(`say "hi"`))
}
