package faceclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedWithScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["image_url"] == "blank.jpg" {
			_, _ = w.Write([]byte(`{"embedding":[],"faces_detected":0}`))
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.25],"score":0.9,"faces_detected":2}`))
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	res, err := c.EmbedWithScore(context.Background(), "face.jpg")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, res.Embedding)
	assert.Equal(t, 2, res.FacesDetected)

	res, err = c.EmbedWithScore(context.Background(), "blank.jpg")
	require.NoError(t, err)
	assert.Equal(t, 0, res.FacesDetected)

	_, err = c.EmbedWithScore(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestEmbedWithScore_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	_, err := c.EmbedWithScore(context.Background(), "face.jpg")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorContains(t, err, "model not loaded")
	assert.ErrorIs(t, c.Health(context.Background()), ErrUnavailable)
}

func TestSkipMode(t *testing.T) {
	c := New("http://unused", true)
	c.SkipEmbedding = []float32{1, 2}
	res, err := c.EmbedWithScore(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, res.Embedding)
	assert.NoError(t, c.Health(context.Background()))
}
