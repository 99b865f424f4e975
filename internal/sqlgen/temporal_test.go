package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/fhirsql/internal/fhirpath"
)

func litDate(v string) *fhirpath.Literal {
	return &fhirpath.Literal{Kind: fhirpath.LitDate, Value: v, Text: "@" + v}
}

func litDateTime(v string) *fhirpath.Literal {
	return &fhirpath.Literal{Kind: fhirpath.LitDateTime, Value: v, Text: "@" + v}
}

func litTime(v string) *fhirpath.Literal {
	return &fhirpath.Literal{Kind: fhirpath.LitTime, Value: v, Text: "@T" + v}
}

func TestTemporalRange(t *testing.T) {
	tests := []struct {
		name  string
		lit   *fhirpath.Literal
		low   string
		next  string
		exact bool
	}{
		{"year", litDate("2010"), "2010", "2011", false},
		{"month", litDate("2010-03"), "2010-03", "2010-04", false},
		{"month rollover", litDate("2010-12"), "2010-12", "2011-01", false},
		{"day", litDate("2010-03-31"), "2010-03-31", "2010-04-01", false},
		{"day year rollover", litDate("2010-12-31"), "2010-12-31", "2011-01-01", false},
		{"leap day", litDate("2012-02-28"), "2012-02-28", "2012-02-29", false},

		{"datetime hour", litDateTime("2015-02-04T14"), "2015-02-04T14", "2015-02-04T15", false},
		{"datetime minute", litDateTime("2015-02-04T14:59"), "2015-02-04T14:59", "2015-02-04T15:00", false},
		{"datetime second", litDateTime("2015-02-04T14:34:28"), "2015-02-04T14:34:28", "2015-02-04T14:34:29", false},
		{"datetime day rollover", litDateTime("2015-02-04T23"), "2015-02-04T23", "2015-02-05T00", false},
		{"datetime zone stripped", litDateTime("2015-02-04T14:34:28Z"), "2015-02-04T14:34:28", "2015-02-04T14:34:29", false},
		{"datetime offset stripped", litDateTime("2015-02-04T14:34:28+02:00"), "2015-02-04T14:34:28", "2015-02-04T14:34:29", false},
		{"datetime trailing T", litDateTime("2015-02-04T"), "2015-02-04", "2015-02-05", false},
		{"datetime fractional is exact", litDateTime("2015-02-04T14:34:28.123"), "2015-02-04T14:34:28.123", "", true},

		{"time hour", litTime("14"), "14", "15", false},
		{"time minute", litTime("14:34"), "14:34", "14:35", false},
		{"time midnight clamp", litTime("23:59"), "23:59", "24:00:00", false},
		{"time second", litTime("14:34:59"), "14:34:59", "14:35:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low, next, exact, err := temporalRange(tt.lit)
			require.NoError(t, err)
			assert.Equal(t, tt.low, low)
			assert.Equal(t, tt.exact, exact)
			if !tt.exact {
				assert.Equal(t, tt.next, next)
			}
		})
	}
}

func TestTemporalRange_Malformed(t *testing.T) {
	_, _, _, err := temporalRange(litDate("20xx"))
	assert.Error(t, err)
}

func TestStripZone(t *testing.T) {
	assert.Equal(t, "2015-02-04T14:34", stripZone("2015-02-04T14:34Z"))
	assert.Equal(t, "2015-02-04T14:34", stripZone("2015-02-04T14:34+05:00"))
	assert.Equal(t, "2015-02-04T14:34", stripZone("2015-02-04T14:34-05:00"))
	assert.Equal(t, "2015-02-04T14:34", stripZone("2015-02-04T14:34"))
}
