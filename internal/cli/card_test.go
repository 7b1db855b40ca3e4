package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCard_AddReviewRemove(t *testing.T) {
	env := newTestEnv(t, "phone", "sqlite")

	out := env.mustRun(t, "card", "add", "spanish", "gato", "el gato", "cat")
	assert.Equal(t, "card_added gato in deck/spanish\n", out)

	out = env.mustRun(t, "--verbose", "card", "review", "deck/spanish", "gato", "2")
	assert.Contains(t, out, "card_reviewed gato in deck/spanish")
	assert.Contains(t, out, "device phone, index 1")

	out = env.mustRun(t, "--format", "json", "card", "remove", "spanish", "gato")
	var resp struct {
		Status string     `json:"status"`
		Data   CardResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, CardResult{Stream: "deck/spanish", Device: "phone", Kind: "card_removed", Card: "gato", Index: 2}, resp.Data)
}

func TestCard_PersistsAcrossRuns(t *testing.T) {
	for _, backend := range []string{"sqlite", "pebble"} {
		t.Run(backend, func(t *testing.T) {
			env := newTestEnv(t, "phone", backend)
			env.mustRun(t, "card", "add", "spanish", "gato", "el gato", "cat")
			env.mustRun(t, "card", "add", "spanish", "perro", "el perro", "dog")

			out := env.mustRun(t, "inspect")
			assert.Contains(t, out, "deck/spanish: 2 event(s) from 1 device(s)")
		})
	}
}

func TestCard_SchemaRejectsGrade(t *testing.T) {
	env := newTestEnv(t, "phone", "memory")

	_, err := env.run(t, "card", "review", "spanish", "gato", "9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to record")
}

func TestCard_BadArguments(t *testing.T) {
	env := newTestEnv(t, "phone", "memory")

	tests := []struct {
		name  string
		args  []string
		error string
	}{
		{"grade not a number", []string{"card", "review", "spanish", "gato", "good"}, "grade must be an integer"},
		{"not a deck", []string{"card", "remove", "quiz/x", "gato"}, "quiz/x is not a deck stream"},
		{"empty name", []string{"card", "remove", "deck/", "gato"}, "invalid stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.error)
		})
	}
}

func TestCard_WrongArgCount(t *testing.T) {
	env := newTestEnv(t, "phone", "memory")

	_, err := env.run(t, "card", "add", "spanish", "gato")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 4 arg(s)")
}
