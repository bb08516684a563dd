package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"

	"lifesync/internal/export"
)

type fakeSheets struct {
	mu       sync.Mutex
	tabs     []string
	calls    []string
	lastBody string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		f.calls = append(f.calls, "addSheet")
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct{ Title string } `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.Unmarshal(body, &req)
		f.tabs = append(f.tabs, req.Requests[0].AddSheet.Properties.Title)
		_, _ = w.Write([]byte(`{}`))
	case strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear")
		_, _ = w.Write([]byte(`{}`))
	case strings.Contains(path, "/values/") && r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
		f.lastBody = string(body)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get")
		type props struct {
			Title string `json:"title"`
		}
		type sheet struct {
			Properties props `json:"properties"`
		}
		resp := struct {
			Sheets []sheet `json:"sheets"`
		}{}
		for _, t := range f.tabs {
			resp.Sheets = append(resp.Sheets, sheet{Properties: props{Title: t}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := NewWithOptions(context.Background(), "sheet-id", nil,
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestExportCreatesTabOnce(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	tbl := export.Table{Name: "2024-01 overview", Header: []string{"group", "outflow"}, Rows: [][]string{{"food", "100.00"}}}

	require.NoError(t, c.Export(context.Background(), tbl))
	require.NoError(t, c.Export(context.Background(), tbl))

	assert.Equal(t, []string{"2024-01 overview"}, fake.tabs)
	assert.Equal(t, []string{"get", "addSheet", "clear", "update", "get", "clear", "update"}, fake.calls)
	assert.Contains(t, fake.lastBody, `["food","100.00"]`)
}

func TestMissingConfig(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "x"}, nil)
	assert.Error(t, err)
	_, err = NewWithOptions(context.Background(), " ", nil, goption.WithoutAuthentication())
	assert.Error(t, err)
}

func TestTabHelpers(t *testing.T) {
	assert.Equal(t, "'Bob''s'", quote("Bob's"))
	assert.Equal(t, "Export", tabName(" "))
	assert.Len(t, []rune(tabName(strings.Repeat("x", 150))), 100)
}
