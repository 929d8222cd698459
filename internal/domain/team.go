package domain

// 不同类别的邻近需求对应的权重系数，模糊匹配得到的邻近关系需要打折
var AdjacencyCategoryWeights = map[string]float64{
	"levenshtein": 0.2,
}

// Adjacency: 某个团队希望与另一个团队相邻
type Adjacency struct {
	ID       string  `json:"id" validate:"required"`
	Weight   float64 `json:"weight" validate:"min=0"`
	Category string  `json:"category,omitempty"`
}

func (a Adjacency) EffectiveWeight() float64 {
	multiplier, ok := AdjacencyCategoryWeights[a.Category]
	if !ok {
		multiplier = 1.0
	}
	return multiplier * a.Weight
}

type Team struct {
	ID             string      `json:"id" validate:"required"`
	NumMembers     int         `json:"numMembers" validate:"required,min=1"`
	WantsAdjacent  []Adjacency `json:"wantsAdjacent" validate:"dive"`
	WantsProximity *Point      `json:"wantsProximity,omitempty"`
}

// EffectiveWeightsByTeamID 返回 {目标团队 ID: 有效权重}，同一目标出现多次时权重累加
func (t *Team) EffectiveWeightsByTeamID() map[string]float64 {
	weights := make(map[string]float64, len(t.WantsAdjacent))
	for _, adj := range t.WantsAdjacent {
		weights[adj.ID] += adj.EffectiveWeight()
	}
	return weights
}
