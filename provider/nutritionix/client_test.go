package nutritionix

import (
	"context"
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
	"nutrimeal/credential"
	"nutrimeal/nutrient"
)

const foods = `{"foods":[
	{"food_name":"egg","serving_qty":2,"serving_unit":"large","serving_weight_grams":100,
	 "nf_calories":143,"nf_total_fat":9.5,"nf_total_carbohydrate":0.7,"nf_protein":12.6,"nf_sodium":142},
	{"food_name":"arepa","serving_qty":1,"serving_unit":"piece","serving_weight_grams":80,
	 "nf_calories":176,"nf_total_fat":2,"nf_total_carbohydrate":36,"nf_protein":4}
]}`

func TestParseFoods(t *testing.T) {
	got, err := ParseFoods([]byte(foods))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "egg", got[0].Name)
	assert.Equal(t, 100.0, got[0].BasisGrams)
	require.NotNil(t, got[1].Grams)
	assert.Equal(t, 80.0, *got[1].Grams)
	assert.InDelta(t, 1.25, got[1].Per100Factor(), 0.0001)

	p := nutrient.Normalize(got[1].Payload)
	require.NotNil(t, p)
	assert.InDelta(t, 176, *p.Calories, 0.001)
	assert.InDelta(t, 36, *p.CarbsG, 0.001)

	_, err = ParseFoods([]byte(`nope`))
	assert.Error(t, err)
}

func TestClient_Nutrients(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v2/natural/nutrients", r.URL.Path)
		if r.Header.Get("x-app-id") == "limited" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "id2", r.Header.Get("x-app-id"))
		assert.Equal(t, "key2", r.Header.Get("x-app-key"))

		var body map[string]string
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		if body["query"] == "unobtainium" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"We couldn't match any of your foods"}`)
			return
		}
		io.WriteString(w, foods)
	}))
	defer srv.Close()

	client, err := NewClient(ClientOpts{
		BaseURL: srv.URL,
		Keys:    []string{"limited:key1", "id2:key2"},
		Cache:   cache.New(time.Hour),
		Now:     func() time.Time { return time.Unix(0, 0) },
	})
	require.NoError(t, err)

	got, err := client.Nutrients(context.Background(), "2 eggs and an arepa")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.EqualValues(t, 2, calls.Load(), "first key is rate limited, second succeeds")

	_, err = client.Nutrients(context.Background(), "2 eggs and an arepa")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "second call is served from cache")

	none, err := client.Nutrients(context.Background(), "unobtainium")
	require.NoError(t, err)
	assert.Empty(t, none)

	empty, err := client.Nutrients(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestClient_NutrientsExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewClient(ClientOpts{BaseURL: srv.URL, Keys: []string{"a:1", "b:2"}})
	require.NoError(t, err)

	_, err = client.Nutrients(context.Background(), "rice")
	assert.ErrorIs(t, err, credential.ErrCredentialsExhausted)
}

func TestNewClient_MalformedKeys(t *testing.T) {
	_, err := NewClient(ClientOpts{Keys: []string{"no-colon", ":missing-id"}})
	assert.ErrorIs(t, err, credential.ErrNoCredentials)
}
