package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

func TestValidate(t *testing.T) {
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 2}}, lineParams())

	tests := []struct {
		name   string
		blocks [][]int
		valid  bool
	}{
		{name: "相邻的两个座位", blocks: [][]int{{0, 1}, {2, 3}}, valid: true},
		{name: "中间的两个座位", blocks: [][]int{{1, 2}, {0, 3}}, valid: true},
		{name: "不连通", blocks: [][]int{{0, 3}, {1, 2}}, valid: false},
		{name: "人数不足", blocks: [][]int{{0}, {1, 2, 3}}, valid: false},
		{name: "重复座位", blocks: [][]int{{0, 1}, {1, 2, 3}}, valid: false},
		{name: "缺少座位", blocks: [][]int{{0, 1}, {2}}, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := genotype(s.p, tt.blocks...)
			assert.Equal(t, tt.valid, s.validator.Validate(g))
		})
	}
}

func TestValidate_WrongBlockCount(t *testing.T) {
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 2}}, lineParams())

	g := &Genotype{Blocks: []Block{{Seats: seatSet(4, 0, 1, 2, 3)}}}
	assert.False(t, s.validator.Validate(g))
}

func TestCheckPartition(t *testing.T) {
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 2}}, lineParams())

	assert.NoError(t, s.validator.CheckPartition(genotype(s.p, []int{0, 3}, []int{1, 2})))
	assert.Error(t, s.validator.CheckPartition(genotype(s.p, []int{0, 1}, []int{1, 2, 3})))
	assert.Error(t, s.validator.CheckPartition(genotype(s.p, []int{0, 1}, []int{3})))
}
