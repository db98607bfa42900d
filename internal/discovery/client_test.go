package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directory(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/providers", r.URL.Path)
		assert.Equal(t, "cardio", r.URL.Query().Get("specialty"))
		assert.Equal(t, "true", r.URL.Query().Get("available"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFindProvider_FirstMatch(t *testing.T) {
	srv := directory(t, http.StatusOK, `{"providers":[
		{"id":1,"name":"Dr. A","specialty":"cardio","available":true},
		{"id":2,"name":"Dr. B","specialty":"cardio","available":true}],"count":2}`)

	p, err := NewClient(srv.URL, time.Second).FindProvider(context.Background(), "cardio")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "Dr. A", p.Name)
}

func TestFindProvider_EmptyListIsNoMatch(t *testing.T) {
	srv := directory(t, http.StatusOK, `{"providers":[],"count":0}`)

	p, err := NewClient(srv.URL, time.Second).FindProvider(context.Background(), "cardio")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestFindProvider_ServerErrorIsUnavailable(t *testing.T) {
	srv := directory(t, http.StatusInternalServerError, `{"error":"boom"}`)

	_, err := NewClient(srv.URL, time.Second).FindProvider(context.Background(), "cardio")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFindProvider_BadBodyIsUnavailable(t *testing.T) {
	srv := directory(t, http.StatusOK, `<html>`)

	_, err := NewClient(srv.URL, time.Second).FindProvider(context.Background(), "cardio")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFindProvider_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, 50*time.Millisecond).FindProvider(context.Background(), "cardio")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFindProvider_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr, time.Second).FindProvider(context.Background(), "cardio")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFindProvider_EmptySpecialty(t *testing.T) {
	_, err := NewClient("http://unused", time.Second).FindProvider(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptySpecialty)
}
