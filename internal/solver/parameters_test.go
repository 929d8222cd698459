package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParameters_Validate(t *testing.T) {
	assert.NoError(t, DefaultParameters().Validate())

	tests := []struct {
		name   string
		modify func(p *Parameters)
		err    error
	}{
		{"未知策略", func(p *Parameters) { p.Strategy = "random" }, ErrInvalidParameter},
		{"未知聚合方式", func(p *Parameters) { p.AdjAggregation = "median" }, ErrInvalidParameter},
		{"未知算子", func(p *Parameters) { p.Operators = []OperatorSpec{{Kind: "teleport", Probability: 1}} }, ErrInvalidParameter},
		{"算子全部关闭", func(p *Parameters) { p.Operators = []OperatorSpec{{Kind: OperatorOverflowSwap}} }, ErrNoOperators},
		{"存活数量过大", func(p *Parameters) { p.SurvivorCount = p.PopulationSize + 1 }, ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.modify(&p)
			assert.ErrorIs(t, p.Validate(), tt.err)
		})
	}
}
