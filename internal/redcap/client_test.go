package redcap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trdsync/internal/registry"
)

// fakeAPI records every form it receives and answers with handler.
func fakeAPI(t *testing.T, handler func(form url.Values) (int, string)) (*httptest.Server, *[]url.Values) {
	t.Helper()
	var forms []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		form, err := url.ParseQuery(string(raw))
		assert.NoError(t, err)
		forms = append(forms, form)

		status, body := handler(form)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &forms
}

func TestExportRecords(t *testing.T) {
	srv, forms := fakeAPI(t, func(url.Values) (int, string) {
		return http.StatusOK, `[{"study_id":"1","id":"p1","redcap_repeat_instrument":"","redcap_repeat_instance":""},
			{"study_id":"1","id":"","redcap_repeat_instrument":"phq9","redcap_repeat_instance":2,"phq9_response_id":"r"}]`
	})
	c := New(srv.URL, "secret", time.Second)

	records, err := c.ExportRecords(context.Background(), []string{"study_id", "id"})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "p1", records[0].String("id"))
	assert.Equal(t, "2", records[1].String("redcap_repeat_instance"))

	require.Len(t, *forms, 1)
	f := (*forms)[0]
	assert.Equal(t, "secret", f.Get("token"))
	assert.Equal(t, "record", f.Get("content"))
	assert.Equal(t, "flat", f.Get("type"))
	assert.Equal(t, "json", f.Get("format"))
	assert.Equal(t, "study_id", f.Get("fields[0]"))
	assert.Equal(t, "id", f.Get("fields[1]"))
}

func TestImportRecords(t *testing.T) {
	srv, forms := fakeAPI(t, func(url.Values) (int, string) {
		return http.StatusOK, `{"count": 2}`
	})
	c := New(srv.URL, "secret", 0)

	n, err := c.ImportRecords(context.Background(), []registry.Record{
		{"study_id": "1", "info_is_test_bool": true},
		{"study_id": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f := (*forms)[0]
	assert.Equal(t, "import", f.Get("action"))
	assert.Equal(t, "count", f.Get("returnContent"))

	var sent []map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.Get("data")), &sent))
	assert.Equal(t, true, sent[0]["info_is_test_bool"])
}

func TestImportRecordsStringCount(t *testing.T) {
	srv, _ := fakeAPI(t, func(url.Values) (int, string) {
		return http.StatusOK, `{"count": "1"}`
	})
	n, err := New(srv.URL, "t", 0).ImportRecords(context.Background(), []registry.Record{{"study_id": "1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGenerateNextRecordName(t *testing.T) {
	srv, forms := fakeAPI(t, func(url.Values) (int, string) {
		return http.StatusOK, "42\n"
	})

	name, err := New(srv.URL, "t", 0).GenerateNextRecordName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", name)
	assert.Equal(t, "generateNextRecordName", (*forms)[0].Get("content"))
}

func TestAPIError(t *testing.T) {
	srv, _ := fakeAPI(t, func(url.Values) (int, string) {
		return http.StatusForbidden, `{"error":"You do not have permissions to use the API"}`
	})

	_, err := New(srv.URL, "bad", 0).ExportRecords(context.Background(), nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, err.Error(), "You do not have permissions to use the API")
}

func TestMalformedExport(t *testing.T) {
	srv, _ := fakeAPI(t, func(url.Values) (int, string) {
		return http.StatusOK, `not json`
	})
	_, err := New(srv.URL, "t", 0).ExportRecords(context.Background(), nil)
	assert.ErrorContains(t, err, "decoding response")
}

func TestContextCancelled(t *testing.T) {
	srv, _ := fakeAPI(t, func(url.Values) (int, string) {
		return http.StatusOK, "1"
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(srv.URL, "t", 0).GenerateNextRecordName(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
