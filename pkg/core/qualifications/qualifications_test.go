package qualifications

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

func testUniverse() *Universe {
	return NewUniverse([]model.Qualification{
		{ID: "paramedic", Title: "Paramedic", Includes: []string{"emt"}},
		{ID: "emt", Title: "EMT", Includes: []string{"first-aid"}},
		{ID: "first-aid", Title: "First Aid"},
		{ID: "driving", Title: "Driving Licence"},
	})
}

func TestSpreadExpandsTransitively(t *testing.T) {
	closed := testUniverse().Spread([]string{"paramedic"})

	assert.Equal(t, []string{"emt", "first-aid", "paramedic"}, closed)
}

func TestSpreadKeepsUnknownIDs(t *testing.T) {
	closed := testUniverse().Spread([]string{"forklift"})

	assert.Equal(t, []string{"forklift"}, closed)
}

func TestSpreadDeduplicates(t *testing.T) {
	closed := testUniverse().Spread([]string{"paramedic", "emt", "first-aid"})

	assert.Equal(t, []string{"emt", "first-aid", "paramedic"}, closed)
}

func TestSpreadHandlesCycles(t *testing.T) {
	universe := NewUniverse([]model.Qualification{
		{ID: "a", Includes: []string{"b"}},
		{ID: "b", Includes: []string{"a"}},
	})

	closed := universe.Spread([]string{"a"})

	assert.Equal(t, []string{"a", "b"}, closed)
}

func TestSpreadEmpty(t *testing.T) {
	assert.Empty(t, testUniverse().Spread(nil))
}
