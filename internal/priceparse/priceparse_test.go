package priceparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTripsExactDecimals(t *testing.T) {
	p, err := Parse("100.0050")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_050), p)
}

func TestParseRejectsExcessPrecision(t *testing.T) {
	_, err := Parse("100.00005")
	assert.Error(t, err)
}

func TestParseRejectsNonPositive(t *testing.T) {
	_, err := Parse("0")
	assert.Error(t, err)

	_, err = Parse("-5.00")
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-number")
	assert.Error(t, err)
}

func TestFormatMatchesParse(t *testing.T) {
	p, err := Parse("42.1234")
	require.NoError(t, err)
	assert.Equal(t, "42.1234", Format(p))
}
