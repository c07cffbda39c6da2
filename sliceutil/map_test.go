package sliceutil_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xeptore/vinylpreview/sliceutil"
)

func TestMap(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"1", "2", "3"}, sliceutil.Map([]int{1, 2, 3}, strconv.Itoa))
	assert.Empty(t, sliceutil.Map(nil, strconv.Itoa))
}

func TestTake(t *testing.T) {
	t.Parallel()

	in := []int{1, 2, 3, 4}
	assert.Equal(t, []int{1, 2, 3}, sliceutil.Take(in, 3))
	assert.Equal(t, in, sliceutil.Take(in, 10))
	assert.Empty(t, sliceutil.Take(in, 0))
	assert.Empty(t, sliceutil.Take(in, -1))
}
