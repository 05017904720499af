package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemTimezone_ReadsTZOnEveryCall(t *testing.T) {
	t.Setenv("TZ", "Asia/Shanghai")
	assert.Equal(t, "Asia/Shanghai", SystemTimezone{}.Location().String())

	t.Setenv("TZ", "America/New_York")
	assert.Equal(t, "America/New_York", SystemTimezone{}.Location().String())

	t.Setenv("TZ", "")
	assert.Equal(t, time.UTC, SystemTimezone{}.Location())
}

func TestMutableTimezone(t *testing.T) {
	tz := NewMutableTimezone(FixedTimezone{Loc: time.UTC})
	assert.Equal(t, time.UTC, tz.Location())

	loc, err := tz.Set("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
	assert.Equal(t, "Asia/Tokyo", tz.Location().String())

	_, err = tz.Set("Mars/Olympus")
	assert.Error(t, err)
	assert.Equal(t, "Asia/Tokyo", tz.Location().String(), "invalid zone keeps the previous one")

	loc, err = tz.Set("Local")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestNewTimezoneProvider(t *testing.T) {
	tz, err := NewTimezoneProvider("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", tz.Location().String())

	_, err = NewTimezoneProvider("nowhere")
	assert.Error(t, err)
}
