package clarifai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrimeal/cache"
	"nutrimeal/concept"
	"nutrimeal/credential"
)

func TestParseResults(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []concept.Candidate
		wantErr bool
	}{
		{
			name: "workflow results",
			body: `{"status":{"code":10000},"results":[{"outputs":[
				{"data":{"concepts":[{"id":"ai_1","name":"arepa","value":0.91},{"id":"cheese","value":0.8}]}}
			]}]}`,
			want: []concept.Candidate{{Name: "arepa", Confidence: 0.91}, {Name: "cheese", Confidence: 0.8}},
		},
		{
			name: "model outputs",
			body: `{"status":{"code":10000},"outputs":[{"data":{"concepts":[{"name":"rice","value":0.7}]}}]}`,
			want: []concept.Candidate{{Name: "rice", Confidence: 0.7}},
		},
		{
			name: "first output with concepts wins",
			body: `{"status":{"code":10000},"results":[{"outputs":[
				{"data":{}},
				{"data":{"concepts":[{"name":"salad","value":0.6}]}}
			]}]}`,
			want: []concept.Candidate{{Name: "salad", Confidence: 0.6}},
		},
		{
			name:    "in-body failure",
			body:    `{"status":{"code":11102,"description":"Invalid request"}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `<html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResults([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResults_StatusDescription(t *testing.T) {
	_, err := ParseResults([]byte(`{"status":{"code":11102,"description":"Invalid request"}}`))
	var upErr *credential.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Contains(t, upErr.Body, "Invalid request")
}

func TestClient_Concepts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v2/users/clarifai/apps/main/workflows/Food/results", r.URL.Path)
		if r.Header.Get("Authorization") == "Key revoked" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Equal(t, "Key good", r.Header.Get("Authorization"))

		var body struct {
			Inputs []input `json:"inputs"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) || !assert.Len(t, body.Inputs, 1) {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(body.Inputs[0].Data.Image.Base64)
		assert.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(raw))

		io.WriteString(w, `{"status":{"code":10000},"results":[{"outputs":[{"data":{"concepts":[{"name":"arepa","value":0.9}]}}]}]}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientOpts{
		BaseURL: srv.URL,
		Keys:    []string{"revoked", "good"},
		Cache:   cache.New(time.Hour),
		Now:     func() time.Time { return time.Unix(0, 0) },
	})
	require.NoError(t, err)

	got, err := client.Concepts(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, []concept.Candidate{{Name: "arepa", Confidence: 0.9}}, got)

	_, err = client.Concepts(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "second call is served from cache")
}

func TestClient_InBodyFailureIsNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"status":{"code":21200,"description":"Model does not exist"}}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientOpts{BaseURL: srv.URL, Keys: []string{"k"}, Cache: cache.New(time.Hour)})
	require.NoError(t, err)

	for range 2 {
		_, err = client.ConceptsFromURL(context.Background(), "https://example.com/meal.jpg")
		assert.Error(t, err)
	}
	assert.EqualValues(t, 2, calls.Load())
}
