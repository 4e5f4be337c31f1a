package faceclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecognizeSendsMultipartImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/recognize", r.URL.Path)
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "probe.jpg", header.Filename)
		assert.Equal(t, []byte("jpeg-bytes"), data)
		_, _ = w.Write([]byte(`{"recognized":true,"userId":7}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	body, err := c.Recognize(context.Background(), []byte("jpeg-bytes"), "probe.jpg")
	require.NoError(t, err)
	assert.JSONEq(t, `{"recognized":true,"userId":7}`, string(body))
}

func TestStatusErrorIsDistinctFromTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model missing", http.StatusInternalServerError)
	}))
	c := New(srv.URL, time.Second)

	_, err := c.Train(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "model missing", statusErr.Body)

	srv.Close()
	err = c.Health(context.Background())
	require.Error(t, err)
	assert.False(t, errors.As(err, &statusErr))
}
