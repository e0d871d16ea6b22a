package lineage

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/nexus/internal/ir"
)

// Node is one fact in a causation tree.
type Node struct {
	Fact     ir.Fact `json:"fact"`
	Children []Node  `json:"children,omitempty"`
}

// Tree builds the causation forest of a closure. Roots are the initial facts
// plus any fact whose cause is not in the closure; siblings keep closure order.
func Tree(closure []ir.Fact) []Node {
	present := make(map[string]bool, len(closure))
	children := make(map[string][]ir.Fact, len(closure))
	for _, f := range closure {
		present[f.ID] = true
	}

	var roots []ir.Fact
	for _, f := range closure {
		if f.IsInitial() || !present[f.CausationID] {
			roots = append(roots, f)
			continue
		}
		children[f.CausationID] = append(children[f.CausationID], f)
	}

	var build func(f ir.Fact) Node
	build = func(f ir.Fact) Node {
		n := Node{Fact: f}
		for _, c := range children[f.ID] {
			n.Children = append(n.Children, build(c))
		}
		return n
	}

	out := make([]Node, len(roots))
	for i, r := range roots {
		out[i] = build(r)
	}
	return out
}

// Size returns the number of facts in the subtree rooted at n.
func (n Node) Size() int {
	size := 1
	for _, c := range n.Children {
		size += c.Size()
	}
	return size
}

// Render writes an indented text view of the forest:
//
//	OrderPlaced fact-1 {order_id:A-100 total:420.0}
//	  PaymentAuthorized fact-3 {amount:420.0 order_id:A-100}
func Render(w io.Writer, forest []Node) error {
	for _, n := range forest {
		if err := render(w, n, 0); err != nil {
			return err
		}
	}
	return nil
}

func render(w io.Writer, n Node, depth int) error {
	_, err := fmt.Fprintf(w, "%s%s %s %s\n",
		strings.Repeat("  ", depth), n.Fact.Name, n.Fact.ID, ir.Describe(n.Fact.Payload))
	if err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := render(w, c, depth+1); err != nil {
			return err
		}
	}
	return nil
}
