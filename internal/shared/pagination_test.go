package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, Pagination{Page: 2, PerPage: 10, Total: 25, TotalPages: 3}, p)
	assert.Equal(t, 10, p.Offset())

	start, end := p.Slice(25)
	assert.Equal(t, 10, start)
	assert.Equal(t, 20, end)
}

func TestPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, -5)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 0, p.TotalPages)
}

func TestPaginationSliceBeyondEnd(t *testing.T) {
	p := NewPagination(5, 10, 12)
	start, end := p.Slice(12)
	assert.Equal(t, 12, start)
	assert.Equal(t, 12, end)
}
