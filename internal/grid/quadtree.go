package grid

const (
	quadTreeCapacity = 8
	quadTreeMaxDepth = 16
)

type rect struct {
	minX, minY, maxX, maxY float64
}

func (r rect) contains(x, y float64) bool {
	return x >= r.minX && x <= r.maxX && y >= r.minY && y <= r.maxY
}

func (r rect) intersects(o rect) bool {
	return r.minX <= o.maxX && o.minX <= r.maxX && r.minY <= o.maxY && o.minY <= r.maxY
}

type quadPoint struct {
	x, y  float64
	index int
}

// quadTree: 点四叉树，用于在半径范围内快速查找座位
type quadTree struct {
	bounds   rect
	depth    int
	points   []quadPoint
	children *[4]quadTree
}

func newQuadTree(bounds rect) *quadTree {
	return &quadTree{bounds: bounds}
}

func (q *quadTree) insert(p quadPoint) bool {
	if !q.bounds.contains(p.x, p.y) {
		return false
	}

	if q.children == nil {
		// 达到最大深度后不再分裂，避免大量重合点导致无限递归
		if len(q.points) < quadTreeCapacity || q.depth >= quadTreeMaxDepth {
			q.points = append(q.points, p)
			return true
		}
		q.split()
	}

	for i := range q.children {
		if q.children[i].insert(p) {
			return true
		}
	}

	// 浮点误差导致子节点都不包含时留在当前节点
	q.points = append(q.points, p)
	return true
}

func (q *quadTree) split() {
	midX := (q.bounds.minX + q.bounds.maxX) / 2
	midY := (q.bounds.minY + q.bounds.maxY) / 2
	b := q.bounds

	q.children = &[4]quadTree{
		{bounds: rect{b.minX, b.minY, midX, midY}, depth: q.depth + 1},
		{bounds: rect{midX, b.minY, b.maxX, midY}, depth: q.depth + 1},
		{bounds: rect{b.minX, midY, midX, b.maxY}, depth: q.depth + 1},
		{bounds: rect{midX, midY, b.maxX, b.maxY}, depth: q.depth + 1},
	}

	points := q.points
	q.points = nil
	for _, p := range points {
		q.insert(p)
	}
}

// searchWithin 对落在 r 内的每个点调用 fn
func (q *quadTree) searchWithin(r rect, fn func(index int)) {
	if !q.bounds.intersects(r) {
		return
	}

	for _, p := range q.points {
		if r.contains(p.x, p.y) {
			fn(p.index)
		}
	}

	if q.children == nil {
		return
	}
	for i := range q.children {
		q.children[i].searchWithin(r, fn)
	}
}
