package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClassifier_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/predict", r.URL.Path)

		var req classifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Purpose == "unknown purpose" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"costItem": null}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"costItem": {"id": "ci-1", "name": "Water supply", "isOutcome": true}}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL)

	item, err := c.Classify(context.Background(), "Оплата за воду", true)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "ci-1", item.ID)
	assert.Equal(t, "Water supply", item.Name)

	item, err = c.Classify(context.Background(), "unknown purpose", true)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestHTTPClassifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL)

	_, err := c.Classify(context.Background(), "whatever", false)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	item, err := Noop{}.Classify(context.Background(), "anything", true)
	require.NoError(t, err)
	assert.Nil(t, item)
}
