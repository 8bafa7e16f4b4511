package domain

// Successor is one outgoing path of a node: the handle it leaves through and
// the node it leads to.
type Successor struct {
	Handle string `json:"handle,omitempty"`
	Target string `json:"target"`
}

// Successors returns every path out of n. Configuration references come
// first, followed by explicit edges. Empty targets are omitted.
//
// The validator walks this set for reachability and Resolve picks from it,
// so both always agree on what a node can lead to.
func (f *FlowVersion) Successors(n *Node) []Successor {
	var out []Successor
	if n.Config != nil {
		for _, s := range n.Config.Successors() {
			if s.Target != "" {
				out = append(out, s)
			}
		}
	}
	for _, e := range f.Edges {
		if e.Source == n.ID && e.Target != "" {
			out = append(out, Successor{Handle: e.SourceHandle, Target: e.Target})
		}
	}
	return out
}

// Resolve returns the node reached from n through handle, or "" when the
// handle leads nowhere.
//
// A configured reference wins over an edge. An edge without a source handle
// also satisfies the primary handles (default, success, true).
func (f *FlowVersion) Resolve(n *Node, handle string) string {
	succ := f.Successors(n)
	for _, s := range succ {
		if s.Handle == handle {
			return s.Target
		}
	}
	if isPrimaryHandle(handle) {
		for _, s := range succ {
			if s.Handle == HandleDefault {
				return s.Target
			}
		}
	}
	return ""
}

func isPrimaryHandle(h string) bool {
	return h == HandleSuccess || h == HandleTrue
}
