package utils

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/mozillazg/go-pinyin"
	opensimplex "github.com/ojrac/opensimplex-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "霞", "飞", "玲", "超",
	"华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌", "欣",
}
var departments = []string{
	"市场", "销售", "研发", "测试", "运维", "设计", "财务", "人事",
	"法务", "客服", "采购", "产品", "数据", "安全", "行政", "培训",
}

func GenerateRandomChineseName(rng *rand.Rand) string {
	surname := commonSurnames[rng.IntN(len(commonSurnames))]
	var name strings.Builder
	for range rng.IntN(2) + 1 {
		name.WriteString(commonNameCharacters[rng.IntN(len(commonNameCharacters))])
	}
	return surname + name.String()
}

// PinyinID 把中文转换为不带声调的拼音，各个字之间用 sep 连接
func PinyinID(chinese string, sep string) string {
	return strings.Join(pinyin.LazyConvert(chinese, nil), sep)
}

func GenerateUsernameFromChineseName(rng *rand.Rand, chineseName string) string {
	var username strings.Builder
	for _, py := range pinyin.LazyConvert(chineseName, nil) {
		username.WriteString(py[:rng.IntN(len(py))+1])
	}
	for range rng.IntN(3) + 1 {
		username.WriteString(fmt.Sprint(rng.IntN(10)))
	}
	return username.String()
}

func GenerateRandomUser(rng *rand.Rand, password string, emailDomainName string) (*domain.User, error) {
	fullName := GenerateRandomChineseName(rng)
	username := GenerateUsernameFromChineseName(rng, fullName)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return &domain.User{
		Username:     username,
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		Email:        username + "@" + emailDomainName,
		Role:         domain.RolePlanner,
	}, nil
}

type FloorPlanOptions struct {
	Rows      int
	Cols      int
	PitchX    float64
	PitchY    float64
	AisleRate float64 // 被挖成过道的座位比例
	Seed      int64
}

/**
 * 生成一个办公区平面图:
 * 		1. 座位按行列排布，每两列工位之间留出半个间距的走道
 * 		2. 用 opensimplex 噪声给每个座位打分，分数最低的 AisleRate 比例的座位被挖掉，形成成片的过道和空地
 * 座位 ID 形如 r03c12
 */
func GenerateFloorPlanSeats(opts FloorPlanOptions) []domain.Seat {
	noise := opensimplex.NewNormalized(opts.Seed)

	type scored struct {
		seat  domain.Seat
		score float64
	}
	candidates := make([]scored, 0, opts.Rows*opts.Cols)
	for r := 0; r < opts.Rows; r++ {
		for c := 0; c < opts.Cols; c++ {
			x := float64(c)*opts.PitchX + float64(c/2)*opts.PitchX*0.5
			y := float64(r) * opts.PitchY
			candidates = append(candidates, scored{
				seat:  domain.Seat{ID: fmt.Sprintf("r%02dc%02d", r, c), X: x, Y: y},
				score: noise.Eval2(float64(r)*0.15, float64(c)*0.15),
			})
		}
	}

	removed := int(float64(len(candidates)) * opts.AisleRate)
	byScore := slices.Clone(candidates)
	slices.SortStableFunc(byScore, func(a, b scored) int { return cmp.Compare(a.score, b.score) })

	carved := make(map[string]bool, removed)
	for _, c := range byScore[:removed] {
		carved[c.seat.ID] = true
	}

	seats := make([]domain.Seat, 0, len(candidates)-removed)
	for _, c := range candidates {
		if !carved[c.seat.ID] {
			seats = append(seats, c.seat)
		}
	}
	return seats
}

// GenerateRandomTeams 生成 n 个团队，总人数约为座位数的 85%
//
// 团队 ID 为部门名的拼音加序号；约一半团队有 1~2 个相邻需求，约 10% 的团队希望靠近某个座位
func GenerateRandomTeams(rng *rand.Rand, seats []domain.Seat, n int) []domain.Team {
	budget := len(seats) * 85 / 100
	n = min(n, budget)
	if n <= 0 {
		return nil
	}

	weights := make([]float64, n)
	total := 0.0
	for i := range weights {
		weights[i] = 0.5 + rng.Float64()*rng.Float64()*4
		total += weights[i]
	}

	teams := make([]domain.Team, n)
	used := 0
	for i := range teams {
		dept := departments[rng.IntN(len(departments))]
		teams[i] = domain.Team{
			ID:         fmt.Sprintf("%s-%d", PinyinID(dept, ""), i+1),
			NumMembers: max(1, int(float64(budget)*weights[i]/total)),
		}
		used += teams[i].NumMembers
	}
	// 每个团队至少 1 人可能让总人数超出预算，从最大的团队开始削减
	for used > budget {
		largest := 0
		for i := range teams {
			if teams[i].NumMembers > teams[largest].NumMembers {
				largest = i
			}
		}
		teams[largest].NumMembers--
		used--
	}

	for i := range teams {
		if n > 1 && rng.IntN(2) == 0 {
			for range rng.IntN(2) + 1 {
				j := rng.IntN(n - 1)
				if j >= i {
					j++
				}
				adj := domain.Adjacency{ID: teams[j].ID, Weight: float64(rng.IntN(5) + 1)}
				if rng.IntN(4) == 0 {
					adj.Category = "levenshtein"
				}
				teams[i].WantsAdjacent = append(teams[i].WantsAdjacent, adj)
			}
		}

		if rng.IntN(10) == 0 {
			p := seats[rng.IntN(len(seats))].Point()
			teams[i].WantsProximity = &p
		}
	}

	return teams
}
