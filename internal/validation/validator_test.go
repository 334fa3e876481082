package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connectRequest struct {
	URL      string `json:"url" validate:"required,http_url"`
	Interval int    `json:"repeatIntervalDays" validate:"gte=0,lte=365"`
}

func TestValidateUsesJSONNames(t *testing.T) {
	v := New()

	err := v.Validate(connectRequest{Interval: 400})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "is required", verr.Fields["url"])
	assert.Equal(t, "must be less than or equal to 365", verr.Fields["repeatIntervalDays"])
}

func TestValidatePasses(t *testing.T) {
	assert.NoError(t, New().Validate(connectRequest{URL: "https://pastebin.com/abc", Interval: 7}))
}
