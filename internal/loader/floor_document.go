package loader

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

// DefaultFloorStride: 相邻两层之间的坐标偏移，保证不同楼层的座位永远不会相邻
const DefaultFloorStride = 1000.0

type FloorDocumentOptions struct {
	// 第 i 层（按文档顺序，从 0 开始）的座位在 x 和 y 上都偏移 i * FloorStride
	FloorStride float64
	// 指定楼层的偏移量，优先于 FloorStride
	Offsets map[string]domain.Point
}

/**
 * 解析如下格式的楼层文档:
 * {
 * 		"team_data": { "<团队>": ["<成员>", ...] },
 * 		"floor_data": { "<楼层>": [{ "name": "<座位>", "x": 1, "y": 2 }, ...] },
 * 		"adjacency": { "<团队>": [{ "target": "<团队>", "value": 1, "type": "..." }, ...] }
 * }
 * 团队人数为成员列表的长度
 */
func LoadFloorDocument(data []byte, opts FloorDocumentOptions) ([]domain.Seat, []domain.Team, error) {
	if !gjson.ValidBytes(data) {
		return nil, nil, errors.New("楼层文档不是合法的 JSON")
	}
	if opts.FloorStride == 0 {
		opts.FloorStride = DefaultFloorStride
	}

	doc := gjson.ParseBytes(data)

	var (
		seats []domain.Seat
		err   error
	)
	floor := 0
	doc.Get("floor_data").ForEach(func(name, list gjson.Result) bool {
		offset, ok := opts.Offsets[name.String()]
		if !ok {
			offset = domain.Point{X: float64(floor) * opts.FloorStride, Y: float64(floor) * opts.FloorStride}
		}
		floor++

		list.ForEach(func(_, v gjson.Result) bool {
			id := v.Get("name").String()
			if id == "" {
				err = fmt.Errorf("楼层 %s 中存在没有名字的座位", name.String())
				return false
			}
			seats = append(seats, domain.Seat{
				ID: id,
				X:  v.Get("x").Float() + offset.X,
				Y:  v.Get("y").Float() + offset.Y,
			})
			return true
		})
		return err == nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(seats) == 0 {
		return nil, nil, errors.New("楼层文档中没有座位")
	}

	adjacency := doc.Get("adjacency")

	var teams []domain.Team
	doc.Get("team_data").ForEach(func(id, members gjson.Result) bool {
		team := domain.Team{
			ID:         id.String(),
			NumMembers: len(members.Array()),
		}

		adjacency.Get(gjson.Escape(id.String())).ForEach(func(_, a gjson.Result) bool {
			team.WantsAdjacent = append(team.WantsAdjacent, domain.Adjacency{
				ID:       a.Get("target").String(),
				Weight:   a.Get("value").Float(),
				Category: a.Get("type").String(),
			})
			return true
		})

		teams = append(teams, team)
		return true
	})
	if len(teams) == 0 {
		return nil, nil, errors.New("楼层文档中没有团队")
	}

	return seats, teams, nil
}
