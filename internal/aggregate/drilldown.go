package aggregate

import (
	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/sales"
)

// RootID keys the top level of a drill-down tree.
const RootID = "root"

// Node is one bar of a drill-down chart. ChildID names the tree entry holding
// the node's children and is nil for leaves.
type Node struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Amount   float64 `json:"amount"`
	ParentID string  `json:"parent_id"`
	ChildID  *string `json:"child_id"`
}

// Tree maps a parent id to its child nodes: commercial lines under RootID,
// pharmacological classes under each line, products under each class.
type Tree map[string][]Node

// Drilldown builds the three-level tree. Each level is sorted by descending amount.
func Drilldown(lines []sales.SalesLine) Tree {
	tree := Tree{RootID: {}}
	lineName := func(l sales.SalesLine) string { return classify.CategoryBreakdown(l).CommercialLine }
	className := func(l sales.SalesLine) string { return classify.CategoryBreakdown(l).Pharmacological }

	byLine := partition(lines, lineName)
	for _, b := range TopN(GroupLines(lines, lineName), 0) {
		lineID := "line:" + b.Key
		tree[RootID] = append(tree[RootID], branch(lineID, b, RootID))

		members := byLine[b.Key]
		byClass := partition(members, className)
		tree[lineID] = []Node{}
		for _, c := range TopN(GroupLines(members, className), 0) {
			classID := lineID + "/class:" + c.Key
			tree[lineID] = append(tree[lineID], branch(classID, c, lineID))

			tree[classID] = []Node{}
			for _, p := range TopN(GroupLines(byClass[c.Key], classify.ProductName), 0) {
				tree[classID] = append(tree[classID], Node{
					ID:       classID + "/product:" + p.Key,
					Label:    p.Key,
					Amount:   p.Amount,
					ParentID: classID,
				})
			}
		}
	}
	return tree
}

func branch(id string, b Bucket, parent string) Node {
	child := id
	return Node{ID: id, Label: b.Key, Amount: b.Amount, ParentID: parent, ChildID: &child}
}

// Total sums the amounts of the nodes under parent.
func (t Tree) Total(parent string) float64 {
	var sum float64
	for _, n := range t[parent] {
		sum += n.Amount
	}
	return sum
}

func partition(lines []sales.SalesLine, key func(sales.SalesLine) string) map[string][]sales.SalesLine {
	out := make(map[string][]sales.SalesLine)
	for _, l := range lines {
		k := key(l)
		out[k] = append(out[k], l)
	}
	return out
}
