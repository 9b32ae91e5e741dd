package errorbook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edwarddev/tutorcore/internal/errorbook"
)

func TestClassifySignError(t *testing.T) {
	c := errorbook.NewClassifier()
	rec := c.Classify("student-1", "q-1", "-5", "5", "linear-equations")

	assert.Contains(t, rec.Tags, "sign-error")
	assert.Equal(t, errorbook.ErrorCareless, rec.ErrorType)
}

func TestClassifyOrderError(t *testing.T) {
	c := errorbook.NewClassifier()
	rec := c.Classify("student-1", "q-1", "21", "12", "linear-equations")

	assert.Contains(t, rec.Tags, "order-error")
}

func TestClassifyCalculationError(t *testing.T) {
	c := errorbook.NewClassifier()
	rec := c.Classify("student-1", "q-1", "17", "5", "linear-equations")

	assert.Equal(t, errorbook.ErrorCalculation, rec.ErrorType)
	assert.Contains(t, rec.Tags, "calculation-error")
}

func TestClassifyIncludesUnitTag(t *testing.T) {
	c := errorbook.NewClassifier()
	rec := c.Classify("student-1", "q-1", "17", "5", "linear-equations")

	assert.Contains(t, rec.Tags, "linear-equations")
}

func TestClassifyDeduplicatesTags(t *testing.T) {
	c := errorbook.NewClassifier()
	rec := c.Classify("student-1", "q-1", "-5", "5", "calculation-error")

	seen := make(map[string]int)
	for _, tag := range rec.Tags {
		seen[tag]++
	}
	for tag, count := range seen {
		assert.Equal(t, 1, count, "tag %q appeared more than once", tag)
	}
}
