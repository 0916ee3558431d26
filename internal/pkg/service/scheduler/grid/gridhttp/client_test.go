package gridhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
)

func TestClientReadRange(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/range/A1:B2", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"rows": [][]string{{"prompt"}}})
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	rows, err := c.ReadRange(context.Background(), cellref.RowRange(0, 1, 1, 2))
	require.NoError(t, err)

	// Shape is normalized to the full requested range
	assert.Equal(t, [][]string{{"prompt", ""}, {"", ""}}, rows)
}

func TestClientWriteCell(t *testing.T) {
	t.Parallel()

	var body cellRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/cell/C3", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret")
	require.NoError(t, c.WriteCell(context.Background(), cellref.New(2, 3), "result"))
	assert.Equal(t, "result", body.Value)
}

func TestClientServerError(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	_, err := c.LastRow(context.Background())
	assert.Error(t, err)
	// Initial attempt + retries
	assert.Equal(t, retryCount+1, attempts)
}
