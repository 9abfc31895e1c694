// Package world models the hex board: nodes, their neighbors and the units
// standing on them.
package world

import (
	"math"

	"github.com/wfunc/piratepanic/cards"
)

const (
	DefaultWidth  = 16
	DefaultHeight = 12

	// spawnColumnOffset is the distance of a side's spawn column from its edge.
	spawnColumnOffset = 3
)

var rowHeight = math.Sqrt(3) / 2

// Offsets of the six neighbors in an odd-row-shifted hex layout.
var (
	evenRowOffsets = [6][2]int{{1, 0}, {-1, 0}, {-1, -1}, {0, -1}, {-1, 1}, {0, 1}}
	oddRowOffsets  = [6][2]int{{1, 0}, {-1, 0}, {0, -1}, {1, -1}, {0, 1}, {1, 1}}
)

// Neighbor links a node to an adjacent one. Angle is the direction of the link
// in degrees, [0, 360).
type Neighbor struct {
	Node  *Node
	Angle float64
}

type Node struct {
	X, Y      int
	Occupied  bool
	Unit      *Unit
	Neighbors []Neighbor

	// Incoming is the unit currently moving onto this node, if any.
	Incoming *Unit
}

// Position returns the node's world coordinates.
func (n *Node) Position() (float64, float64) {
	return float64(n.X) + 0.5*float64(n.Y&1), float64(n.Y) * rowHeight
}

// Free reports whether no unit stands on or is moving onto the node.
func (n *Node) Free() bool {
	return !n.Occupied && n.Incoming == nil
}

func (n *Node) IsNeighbor(other *Node) bool {
	for _, nb := range n.Neighbors {
		if nb.Node == other {
			return true
		}
	}
	return false
}

type Grid struct {
	Width  int
	Height int
	nodes  []*Node
}

func NewGrid(width, height int) *Grid {
	g := &Grid{Width: width, Height: height, nodes: make([]*Node, width*height)}
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			g.nodes[x*height+y] = &Node{X: x, Y: y}
		}
	}
	for _, n := range g.nodes {
		offsets := evenRowOffsets
		if n.Y&1 == 1 {
			offsets = oddRowOffsets
		}
		for _, off := range offsets {
			nb := g.Node(n.X+off[0], n.Y+off[1])
			if nb == nil {
				continue
			}
			n.Neighbors = append(n.Neighbors, Neighbor{Node: nb, Angle: Bearing(n, nb)})
		}
	}
	return g
}

func NewDefaultGrid() *Grid {
	return NewGrid(DefaultWidth, DefaultHeight)
}

// Node returns the node at (x, y) or nil when out of bounds.
func (g *Grid) Node(x, y int) *Node {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return nil
	}
	return g.nodes[x*g.Height+y]
}

// Nodes returns every node in scan order: x ascending, then y ascending.
func (g *Grid) Nodes() []*Node {
	return g.nodes
}

func (g *Grid) Adjacent(a, b *Node) bool {
	return a != nil && b != nil && a.IsNeighbor(b)
}

// SpawnColumn is the x coordinate of a side's spawn column. The host owns the
// low-x half of the board.
func (g *Grid) SpawnColumn(host bool) int {
	if host {
		return spawnColumnOffset
	}
	return g.Width - 1 - spawnColumnOffset
}

func (g *Grid) InHalf(n *Node, host bool) bool {
	if host {
		return n.X < g.Width/2
	}
	return n.X >= g.Width/2
}

// Mirror maps a host-side x coordinate to the opponent's side.
func (g *Grid) Mirror(x int) int {
	return g.Width - 1 - x
}

func (g *Grid) InRegion(n *Node, host bool, region cards.DropRegion) bool {
	switch region {
	case cards.WholeMap:
		return true
	case cards.AllyHalf:
		return g.InHalf(n, host)
	case cards.EnemyHalf:
		return g.InHalf(n, !host)
	case cards.AllySpawn:
		return n.X == g.SpawnColumn(host) && n.Y%2 == 0
	case cards.EnemySpawn:
		return n.X == g.SpawnColumn(!host) && n.Y%2 == 0
	}
	return false
}

// Resolve finds the eligible node of region closest to the world position
// (wx, wy). host tells whether the acting player is the host. Unless
// stackable, only free nodes are eligible. Ties go to the first node in scan
// order.
func (g *Grid) Resolve(wx, wy float64, host bool, region cards.DropRegion, stackable bool) (*Node, bool) {
	var best *Node
	bestDist := math.Inf(1)
	for _, n := range g.nodes {
		if !g.InRegion(n, host, region) {
			continue
		}
		if !stackable && !n.Free() {
			continue
		}
		nx, ny := n.Position()
		if d := math.Hypot(nx-wx, ny-wy); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best, best != nil
}

func Distance(a, b *Node) float64 {
	ax, ay := a.Position()
	bx, by := b.Position()
	return math.Hypot(bx-ax, by-ay)
}

// Bearing is the direction from a to b in degrees, [0, 360).
func Bearing(a, b *Node) float64 {
	ax, ay := a.Position()
	bx, by := b.Position()
	deg := math.Atan2(by-ay, bx-ax) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// AngleDiff is the absolute difference of two directions, [0, 180].
func AngleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
