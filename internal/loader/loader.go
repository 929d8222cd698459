package loader

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

// LoadSeatsCSV 读取表头为 id,x,y 的座位表，列的顺序不限
func LoadSeatsCSV(r io.Reader) ([]domain.Seat, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}

	columns := map[string]int{"id": -1, "x": -1, "y": -1}
	for i, header := range headers {
		key := strings.ToLower(strings.TrimSpace(header))
		if _, ok := columns[key]; ok {
			columns[key] = i
		}
	}
	for key, i := range columns {
		if i < 0 {
			return nil, fmt.Errorf("缺少 %s 列", key)
		}
	}

	seats := make([]domain.Seat, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取第 %d 行失败: %w", line, err)
		}

		x, err := strconv.ParseFloat(strings.TrimSpace(record[columns["x"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行的 x 坐标无效: %w", line, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(record[columns["y"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行的 y 坐标无效: %w", line, err)
		}

		id := strings.TrimSpace(record[columns["id"]])
		if id == "" {
			return nil, fmt.Errorf("第 %d 行的座位 ID 为空", line)
		}

		seats = append(seats, domain.Seat{ID: id, X: x, Y: y})
	}

	return seats, nil
}

// LoadTeamsJSON 读取团队列表
func LoadTeamsJSON(r io.Reader) ([]domain.Team, error) {
	var teams []domain.Team
	if err := json.NewDecoder(r).Decode(&teams); err != nil {
		return nil, fmt.Errorf("解析团队列表失败: %w", err)
	}

	for i, team := range teams {
		if team.ID == "" {
			return nil, fmt.Errorf("第 %d 个团队缺少 ID", i)
		}
		if slices.ContainsFunc(team.WantsAdjacent, func(a domain.Adjacency) bool { return a.ID == team.ID }) {
			return nil, fmt.Errorf("团队 %s 不能要求与自己相邻", team.ID)
		}
	}

	return teams, nil
}
