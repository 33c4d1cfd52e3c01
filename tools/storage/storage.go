package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"nutrimeal/credential"
	"nutrimeal/nutrient"
)

// CredentialState holds the upstream credential pools as a JSON document.
type CredentialState interface {
	Load(ctx context.Context) ([]byte, error)
}

// ReferenceState holds extra reference-table rows as a JSON array.
type ReferenceState interface {
	Load(ctx context.Context) ([]byte, error)
}

// Credentials are the rotation pools per upstream. Each entry may itself be a comma or newline
// separated list, the same format the environment variables use.
type Credentials struct {
	LogMeal     []string `json:"logmeal_tokens"`
	Nutritionix []string `json:"nutritionix_keys"`
	Clarifai    []string `json:"clarifai_keys"`
}

// Merge appends other's pools after c's.
func (c Credentials) Merge(other Credentials) Credentials {
	return Credentials{
		LogMeal:     append(append([]string{}, c.LogMeal...), other.LogMeal...),
		Nutritionix: append(append([]string{}, c.Nutritionix...), other.Nutritionix...),
		Clarifai:    append(append([]string{}, c.Clarifai...), other.Clarifai...),
	}
}

// Empty reports whether no pool has a usable entry.
func (c Credentials) Empty() bool {
	return len(c.LogMeal) == 0 && len(c.Nutritionix) == 0 && len(c.Clarifai) == 0
}

// LoadCredentials reads and decodes a credential document.
func LoadCredentials(ctx context.Context, state CredentialState) (Credentials, error) {
	data, err := state.Load(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	var raw Credentials
	if err := json.Unmarshal(data, &raw); err != nil {
		return Credentials{}, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return Credentials{
		LogMeal:     splitAll(raw.LogMeal),
		Nutritionix: splitAll(raw.Nutritionix),
		Clarifai:    splitAll(raw.Clarifai),
	}, nil
}

// LoadReferences reads reference overrides. A missing file keeps fs.ErrNotExist in the error chain.
func LoadReferences(ctx context.Context, state ReferenceState) ([]nutrient.Reference, error) {
	data, err := state.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load references: %w", err)
	}
	return nutrient.ParseReferences(data)
}

func splitAll(entries []string) []string {
	var out []string
	for _, e := range entries {
		out = append(out, credential.ParsePool(e)...)
	}
	return out
}

var errNotFound = errors.New("not found")

// TestCredentialState is a simple in-memory implementation for testing
type TestCredentialState struct {
	data []byte
	err  error
}

func NewTestCredentialState(data []byte) *TestCredentialState {
	return &TestCredentialState{data: data}
}

func NewTestCredentialStateWithError() *TestCredentialState {
	return &TestCredentialState{err: errNotFound}
}

func (t *TestCredentialState) Load(ctx context.Context) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}

// TestReferenceState is a simple in-memory implementation for testing
type TestReferenceState struct {
	data []byte
	err  error
}

func NewTestReferenceState(data []byte) *TestReferenceState {
	return &TestReferenceState{data: data}
}

func NewTestReferenceStateWithError() *TestReferenceState {
	return &TestReferenceState{err: errNotFound}
}

func (t *TestReferenceState) Load(ctx context.Context) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}
