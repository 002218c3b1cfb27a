package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagination_Normalize(t *testing.T) {
	assert.Equal(t, Pagination{Limit: DefaultLimit}, Pagination{}.Normalize())
	assert.Equal(t, Pagination{Limit: MaxLimit, Offset: 0}, Pagination{Limit: 5000, Offset: -1}.Normalize())
	assert.Equal(t, Pagination{Limit: 10, Offset: 20}, Pagination{Limit: 10, Offset: 20}.Normalize())
}

func TestNewListResult_NeverNil(t *testing.T) {
	r := NewListResult[int](nil, 0, Pagination{Limit: 10})
	assert.NotNil(t, r.Items)
	assert.Empty(t, r.Items)
}
