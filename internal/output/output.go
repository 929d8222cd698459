package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

// WriteAssignments 以 JSON 输出座位分配结果
func WriteAssignments(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

var palette = []string{
	"blue", "cornflowerblue", "lightcoral", "burlywood", "chocolate", "deeppink",
	"blueviolet", "green", "greenyellow", "darkgreen", "indigo", "dodgerblue",
	"goldenrod", "crimson", "orangered", "lightseagreen", "lightsalmon", "plum",
	"gold", "red", "yellow", "limegreen",
}

// Color 返回座位块在图中的颜色，空座位块为黑色
func Color(layout solver.BlockLayout) string {
	if layout.Overflow {
		return "black"
	}
	return palette[layout.ColorKey%uint32(len(palette))]
}

// Graph: 一个候选解的可视化
type Graph struct {
	Name   string
	Blocks []solver.BlockLayout
}

/**
 * 输出 Graphviz 的 .dot 文件，需要使用 neato -n 渲染以保留座位坐标
 * 每个团队有一个不带边框的标签节点，位于团队的重心
 * 每个座位是一个按团队着色的小矩形
 */
func WriteDot(w io.Writer, g Graph) error {
	bw := bufio.NewWriter(w)

	name := g.Name
	if name == "" {
		name = "seats"
	}
	fmt.Fprintf(bw, "graph %s {\n", strconv.Quote(name))

	for _, block := range g.Blocks {
		color := Color(block)

		if !block.Overflow && len(block.Seats) > 0 {
			var cx, cy float64
			for _, seat := range block.Seats {
				cx += seat.X
				cy += seat.Y
			}
			cx /= float64(len(block.Seats))
			cy /= float64(len(block.Seats))

			fmt.Fprintf(bw, "  %s [shape=none, fontsize=8, fontcolor=%s, color=white, group=%s, pos=\"%d,%d\"];\n",
				strconv.Quote("team:"+block.TeamID), color, strconv.Quote(block.TeamID), int(cx), int(cy))
		}

		for _, seat := range block.Seats {
			fmt.Fprintf(bw, "  %s [label=\"\", shape=rectangle, width=0.05, height=0.1, color=%s, pos=\"%d,%d\"];\n",
				strconv.Quote(seat.ID), color, int(seat.X), int(seat.Y))
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
