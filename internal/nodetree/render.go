package nodetree

import (
	"fmt"
	"strings"
)

// Render writes the tree as an ASCII table, root-first:
//
//	│ RATIO │  TOTAL  │  SELF   │ TREE
//	│       │         │         │
//	│ 100.0 │ 46      │ 5       │ main
//	│ 89.1  │ 41      │ 5       │ └─ run
//	│ 19.6  │ 9       │ 1       │    ├─ parse
//	│ 26.1  │ 12      │ 4       │    └─ execute
//
// Ratios are relative to the whole tree's total.
func (t *Tree) Render() string {
	var b strings.Builder
	b.WriteString("│ RATIO │  TOTAL  │  SELF   │ TREE\n")
	b.WriteString("│       │         │         │     \n")

	total := t.Total()
	for _, child := range t.Children {
		renderNode(&b, child, total, "", "")
	}
	return b.String()
}

func renderNode(b *strings.Builder, node *Node, total uint64, prefix, marker string) {
	percentage := float64(node.Subtotal) / float64(total) * 100

	fmt.Fprintf(b, "│ %-5.1f │ %-7d │ %-7d │ %s%s%s\n",
		percentage, node.Subtotal, node.Count, prefix, marker, node.Name)

	childPrefix := prefix
	switch marker {
	case "":
	case "├─ ":
		childPrefix += "│  "
	default:
		childPrefix += "   "
	}

	for i, child := range node.Children {
		childMarker := "├─ "
		if i == len(node.Children)-1 {
			childMarker = "└─ "
		}
		renderNode(b, child, total, childPrefix, childMarker)
	}
}
