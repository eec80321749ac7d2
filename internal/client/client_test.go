package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestBulkDeleteSendsOneRequest(t *testing.T) {
	var calls atomic.Int32
	var gotBody map[string][]int64
	var gotHeader http.Header

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, BulkDeletePath, r.URL.Path)
		gotHeader = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success_count":3,"error_count":0,"deleted":[4,2,9],"failed":[],"message":"ok","extra":true}`)
	}), WithCSRFToken("tok-123"))

	res, err := c.BulkDelete(context.Background(), []int64{4, 2, 9})
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, []int64{4, 2, 9}, gotBody["container_ids"])
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "tok-123", gotHeader.Get(CSRFHeader))
	assert.Equal(t, 3, res.SuccessCount)
	assert.Equal(t, []int64{4, 2, 9}, res.Deleted)
	assert.Empty(t, res.FailedIDs())
}

func TestBulkDeleteWithoutToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header[http.CanonicalHeaderKey(CSRFHeader)]
		assert.False(t, present, "no token header expected")
		io.WriteString(w, `{"success_count":0}`)
	}))

	res, err := c.BulkDelete(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Nil(t, res.Failed)
}

func TestBulkDeleteMinimalResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success_count":2}`)
	}))

	res, err := c.BulkDelete(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, BulkDeleteResult{SuccessCount: 2}, res)
}

func TestBulkDeletePartialFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success_count":1,"error_count":1,"deleted":[1],"failed":[{"id":2,"reason":"not found"}]}`)
	}))

	res, err := c.BulkDelete(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, res.FailedIDs())
	assert.Equal(t, "not found", res.Failed[0].Reason)
}

func TestBulkDeleteNon2xx(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":"missing or invalid CSRF token"}`)
	}))

	_, err := c.BulkDelete(context.Background(), []int64{1})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, "missing or invalid CSRF token", se.Message)
}

func TestBulkDeleteNon2xxPlainBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.BulkDelete(context.Background(), []int64{1})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "server returned 500", se.Error())
}

func TestBulkDeleteMalformedResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>not json</html>`)
	}))

	_, err := c.BulkDelete(context.Background(), []int64{1})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestBulkDeleteMissingSuccessCount(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"deleted":[1]}`,
		`{"success_count":null,"deleted":[1]}`,
		`{"success_count":"1"}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			}))

			res, err := c.BulkDelete(context.Background(), []int64{1})
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Equal(t, BulkDeleteResult{}, res)
		})
	}
}

func TestBulkDeleteConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c, err := New("http://" + addr)
	require.NoError(t, err)

	_, err = c.BulkDelete(context.Background(), []int64{1})
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestBulkDeleteTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), WithTimeout(50*time.Millisecond))
	defer close(release)

	start := time.Now()
	_, err := c.BulkDelete(context.Background(), []int64{1})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWithTimeoutCopiesCallerClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	c, err := New("http://example.com", WithHTTPClient(shared), WithTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.Equal(t, time.Minute, shared.Timeout, "caller's client must stay untouched")
	assert.NotSame(t, shared, c.httpClient)

	// Option order does not matter.
	c, err = New("http://example.com", WithTimeout(2*time.Second), WithHTTPClient(shared))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.httpClient.Timeout)
	assert.Equal(t, time.Minute, shared.Timeout)
}

func TestTimeoutDefaults(t *testing.T) {
	c, err := New("http://example.com")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)

	c, err = New("http://example.com", WithHTTPClient(&http.Client{Timeout: time.Minute}))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.httpClient.Timeout)
}

func TestBulkStatusUpdate(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, BulkStatusPath, r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get(CSRFHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"success_count":1,"error_count":1,"updated":[3],"failed":[{"id":8,"reason":"not found"}],"message":"Updated status for 1 container."}`)
	}), WithCSRFToken("tok"))

	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	res, err := c.BulkStatusUpdate(context.Background(), []int64{3, 8}, StatusUpdate{
		Status:   "discharged",
		Location: "Walvis Bay",
		Date:     &date,
	})
	require.NoError(t, err)

	assert.Equal(t, []any{float64(3), float64(8)}, got["container_ids"])
	assert.Equal(t, "discharged", got["status"])
	assert.Equal(t, "Walvis Bay", got["location"])
	assert.Equal(t, "2024-05-02T00:00:00Z", got["date"])
	assert.NotContains(t, got, "notes")

	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, []int64{3}, res.Updated)
	assert.Equal(t, []int64{8}, res.FailedIDs())
}

func TestBulkStatusUpdateMissingSuccessCount(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"updated":[3]}`)
	}))

	_, err := c.BulkStatusUpdate(context.Background(), []int64{3}, StatusUpdate{Status: "loaded", Location: "x"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSearch(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, SearchAPIPath+"MSC", r.URL.Path)
		io.WriteString(w, `[{"id":1,"container_number":"MSCU1234567","container_type":"40HC"}]`)
	}))

	list, err := c.Search(context.Background(), " MSC ")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "MSCU1234567", list[0].Number)

	list, err = c.Search(context.Background(), "M")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.EqualValues(t, 1, calls.Load(), "short queries are not sent")
}

func TestList(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ListAPIPath, r.URL.Path)
		io.WriteString(w, `[{"id":1,"container_number":"MSCU1234567","container_type":"40HC","current_status":"loaded","location":"Berth 4"}]`)
	}))

	list, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "MSCU1234567", list[0].Number)
	assert.Equal(t, "loaded", list[0].CurrentStatus)
}

func TestFetchCSRFToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ListPagePath, r.URL.Path)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<!doctype html><html><head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width">
<meta name="csrf-token" content="abc-def">
</head><body></body></html>`)
	}))

	token, err := c.FetchCSRFToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc-def", token)
	assert.Equal(t, "abc-def", c.CSRFToken())
}

func TestMetaContent(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"present", `<meta name="csrf-token" content="x1">`, "x1"},
		{"self closing", `<head><meta name="CSRF-Token" content="x2" /></head>`, "x2"},
		{"absent", `<head><meta name="other" content="nope"></head>`, ""},
		{"empty doc", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MetaContent(strings.NewReader(tt.doc), "csrf-token")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	c, err := New("http://example.com/admin/")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/admin/containers/bulk-delete", c.endpoint(BulkDeletePath))
}
