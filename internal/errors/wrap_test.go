package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapper_Wrap(t *testing.T) {
	w := NewWrapper("api", "get_occupancy")

	assert.NoError(t, w.Wrap(nil, "failed to load occupancy"))

	cause := errors.New("sqlite: database is locked")
	err := w.Wrap(cause, "failed to load occupancy")

	var we *WrappedError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "api.get_occupancy", we.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "api.get_occupancy: sqlite: database is locked", err.Error())
}

func TestGetUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("upstream timeout"), "upstream timeout"},
		{"wrapped", NewWrapper("api", "export").Wrap(ErrNotFound, "failed to load occupancy"), "failed to load occupancy"},
		{
			"outermost wins",
			NewWrapper("api", "date").Wrap(NewWrapper("scan", "parse").Wrap(ErrInvalidInput, "inner"), "date must be YYYY-MM-DD"),
			"date must be YYYY-MM-DD",
		},
		{
			"behind fmt wrapping",
			fmt.Errorf("handler: %w", NewWrapper("api", "set_times").Wrap(ErrInvalidInput, "failed to save times")),
			"failed to save times",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetUserMessage(tt.err))
		})
	}
}
