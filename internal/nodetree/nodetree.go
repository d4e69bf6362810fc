package nodetree

import (
	"sort"

	"github.com/treescope/treescope/internal/profile"
)

type (
	// Tree is a name-keyed call tree aggregated from a thread's samples.
	// Functions sharing a name merge into a single node regardless of
	// their table indices.
	Tree struct {
		Children []*Node `json:"children,omitempty"`
	}

	Node struct {
		Name string `json:"name"`
		// Count is the weight of samples whose leaf is this node.
		Count uint64 `json:"count"`
		// Subtotal is Count plus the subtotal of all descendants.
		Subtotal uint64  `json:"subtotal"`
		Children []*Node `json:"children,omitempty"`
	}
)

// FromThread walks every sample's frame stack root-to-leaf and
// accumulates weights into the tree. Children are kept sorted descending
// by subtotal; equal subtotals end up in reverse insertion order.
func FromThread(p *profile.Profile, threadIndex int) *Tree {
	tree := &Tree{}

	t := &p.Threads[threadIndex]
	for sampleIndex := 0; sampleIndex < t.Samples.Length; sampleIndex++ {
		sample := profile.NewSample(p, t, sampleIndex)
		weight := sample.Weight()
		frames := sample.Stack().FrameStack()

		children := &tree.Children
		for i := len(frames) - 1; i >= 0; i-- {
			node := findOrInsert(children, frames[i].Func().Name())
			node.Subtotal += weight
			if i == 0 {
				node.Count += weight
			}
			sortBySubtotal(*children)
			children = &node.Children
		}
	}

	return tree
}

// Total is the weight of all samples in the tree.
func (t *Tree) Total() uint64 {
	var total uint64
	for _, child := range t.Children {
		total += child.Subtotal
	}
	return total
}

// Prune removes, recursively, every node whose subtotal contributes less
// than limitPercent of the tree total. Removed nodes are returned as
// leaves with their count raised to their subtotal, so the weight of
// their pruned descendants stays attributed to them.
func (t *Tree) Prune(limitPercent float64) []*Node {
	threshold := limitPercent / 100 * float64(t.Total())

	var removed []*Node
	t.Children = pruneChildren(t.Children, threshold, &removed)
	return removed
}

func pruneChildren(children []*Node, threshold float64, removed *[]*Node) []*Node {
	kept := children[:0]
	for _, child := range children {
		if float64(child.Subtotal) < threshold {
			child.Count = child.Subtotal
			child.Children = nil
			*removed = append(*removed, child)
			continue
		}
		child.Children = pruneChildren(child.Children, threshold, removed)
		kept = append(kept, child)
	}
	return kept
}

func findOrInsert(children *[]*Node, name string) *Node {
	for _, child := range *children {
		if child.Name == name {
			return child
		}
	}
	node := &Node{Name: name}
	*children = append(*children, node)
	return node
}

// sortBySubtotal sorts ascending then reverses, so that ties come out in
// reverse insertion order, like repeated stable re-sorting would leave
// them.
func sortBySubtotal(children []*Node) {
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].Subtotal < children[j].Subtotal
	})
	for i, j := 0, len(children)-1; i < j; i, j = i+1, j-1 {
		children[i], children[j] = children[j], children[i]
	}
}
