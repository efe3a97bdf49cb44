package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"redraft/internal/provider"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want provider.Kind
	}{
		{"throttle", &googleapi.Error{Code: 429}, provider.KindTransient},
		{"server error", &googleapi.Error{Code: 503}, provider.KindTransient},
		{"auth", &googleapi.Error{Code: 401}, provider.KindFatal},
		{"forbidden", &googleapi.Error{Code: 403}, provider.KindFatal},
		{"bad request", &googleapi.Error{Code: 400}, provider.KindFatal},
		{"deadline", context.DeadlineExceeded, provider.KindTransient},
		{"bare network error", errors.New("connection refused"), provider.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			var pErr *provider.Error
			require.ErrorAs(t, got, &pErr)
			assert.Equal(t, tt.want, pErr.Kind)
			assert.Equal(t, "gemini", pErr.Provider)
		})
	}
}

func TestClassify_SentinelMapping(t *testing.T) {
	err := classify(&googleapi.Error{Code: 429})
	assert.ErrorIs(t, err, provider.ErrRateLimited)

	err = classify(&googleapi.Error{Code: 500})
	assert.ErrorIs(t, err, provider.ErrUnavailable)

	err = classify(&googleapi.Error{Code: 401})
	assert.ErrorIs(t, err, provider.ErrUnauthorized)
}
