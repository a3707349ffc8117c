package engine

// NodeID identifies a variable node in the tree arena.
type NodeID int

// VariableNode is one variable in the tree. Children are stored as ordered
// node ids so the arena has no back-pointers.
type VariableNode struct {
	ID        NodeID
	Name      string
	Value     string
	Type      string
	Reference int
	Children  []NodeID
	Expanded  bool
	Error     string
}

// HasChildren reports whether the node is a container.
func (n *VariableNode) HasChildren() bool {
	return n.Reference > 0
}

// VariableView is an immutable, materialized view of a node and its
// expanded descendants.
type VariableView struct {
	ID        NodeID         `json:"id"`
	Name      string         `json:"name"`
	Value     string         `json:"value"`
	Type      string         `json:"type,omitempty"`
	Reference int            `json:"variablesReference"`
	Expanded  bool           `json:"expanded"`
	Error     string         `json:"error,omitempty"`
	Children  []VariableView `json:"children,omitempty"`
}

// VariableTree is a lazy cache of variable nodes for the selected frame.
// Fetched children are cached by variables reference for the current
// generation only.
type VariableTree struct {
	nodes    map[NodeID]*VariableNode
	roots    map[Scope][]NodeID
	loaded   map[Scope]bool
	cache    map[int][]Variable
	inflight map[int]bool
	nextID   NodeID

	generation uint64
}

// NewVariableTree creates an empty tree.
func NewVariableTree() *VariableTree {
	t := &VariableTree{}
	t.reset()
	return t
}

func (t *VariableTree) reset() {
	t.nodes = make(map[NodeID]*VariableNode)
	t.roots = make(map[Scope][]NodeID)
	t.loaded = make(map[Scope]bool)
	t.cache = make(map[int][]Variable)
	t.inflight = make(map[int]bool)
}

// Generation returns the generation the cache belongs to.
func (t *VariableTree) Generation() uint64 {
	return t.generation
}

// Invalidate clears every node and cached child list and moves the tree to
// a new generation.
func (t *VariableTree) Invalidate(generation uint64) {
	t.generation = generation
	t.reset()
}

// ResetRoots drops the root sets and their nodes, keeping fetched child
// lists, which stay valid for the whole pause.
func (t *VariableTree) ResetRoots() {
	t.nodes = make(map[NodeID]*VariableNode)
	t.roots = make(map[Scope][]NodeID)
	t.loaded = make(map[Scope]bool)
}

// SetRoots installs the root variables for a scope. Stale generations are
// ignored and reported as false.
func (t *VariableTree) SetRoots(scope Scope, generation uint64, vars []Variable) bool {
	if generation != t.generation {
		return false
	}
	t.roots[scope] = t.materialize(vars)
	t.loaded[scope] = true
	return true
}

// Roots returns the root nodes of a scope; empty until fetched.
func (t *VariableTree) Roots(scope Scope) []VariableNode {
	ids := t.roots[scope]
	result := make([]VariableNode, 0, len(ids))
	for _, id := range ids {
		if n, ok := t.nodes[id]; ok {
			result = append(result, n.clone())
		}
	}
	return result
}

// Loaded reports whether the roots of a scope were fetched.
func (t *VariableTree) Loaded(scope Scope) bool {
	return t.loaded[scope]
}

// Node returns a copy of a node.
func (t *VariableTree) Node(id NodeID) (VariableNode, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return VariableNode{}, false
	}
	return n.clone(), true
}

// Expand marks a node expanded. It returns the reference to fetch when the
// children are neither cached nor already being fetched; zero means no
// request is needed.
func (t *VariableTree) Expand(id NodeID) (int, error) {
	n, ok := t.nodes[id]
	if !ok {
		return 0, ErrUnknownVariable
	}
	if !n.HasChildren() {
		return 0, nil
	}

	n.Expanded = true
	n.Error = ""
	if n.Children != nil {
		return 0, nil
	}
	if vars, ok := t.cache[n.Reference]; ok {
		n.Children = t.materialize(vars)
		return 0, nil
	}
	if t.inflight[n.Reference] {
		return 0, nil
	}
	t.inflight[n.Reference] = true
	return n.Reference, nil
}

// Collapse hides a node's children without discarding them.
func (t *VariableTree) Collapse(id NodeID) error {
	n, ok := t.nodes[id]
	if !ok {
		return ErrUnknownVariable
	}
	n.Expanded = false
	return nil
}

// Populate stores fetched children for a reference and attaches them to
// every expanded node waiting on it. A result from another generation is
// discarded and reported as false.
func (t *VariableTree) Populate(reference int, generation uint64, vars []Variable) bool {
	if generation != t.generation {
		return false
	}
	delete(t.inflight, reference)
	t.cache[reference] = vars
	for _, n := range t.waiting(reference) {
		n.Children = t.materialize(vars)
	}
	return true
}

// Fail records a fetch failure on every node waiting on a reference.
func (t *VariableTree) Fail(reference int, generation uint64, err error) bool {
	if generation != t.generation {
		return false
	}
	delete(t.inflight, reference)
	for _, n := range t.waiting(reference) {
		n.Error = err.Error()
	}
	return true
}

// Cached reports whether children for a reference are cached.
func (t *VariableTree) Cached(reference int) bool {
	_, ok := t.cache[reference]
	return ok
}

// View materializes the visible tree of a scope.
func (t *VariableTree) View(scope Scope) []VariableView {
	return t.view(t.roots[scope])
}

func (t *VariableTree) view(ids []NodeID) []VariableView {
	if len(ids) == 0 {
		return nil
	}
	result := make([]VariableView, 0, len(ids))
	for _, id := range ids {
		n, ok := t.nodes[id]
		if !ok {
			continue
		}
		v := VariableView{
			ID:        n.ID,
			Name:      n.Name,
			Value:     n.Value,
			Type:      n.Type,
			Reference: n.Reference,
			Expanded:  n.Expanded,
			Error:     n.Error,
		}
		if n.Expanded {
			v.Children = t.view(n.Children)
		}
		result = append(result, v)
	}
	return result
}

func (t *VariableTree) waiting(reference int) []*VariableNode {
	var result []*VariableNode
	for _, n := range t.nodes {
		if n.Reference == reference && n.Expanded && n.Children == nil {
			result = append(result, n)
		}
	}
	return result
}

func (t *VariableTree) materialize(vars []Variable) []NodeID {
	ids := make([]NodeID, 0, len(vars))
	for _, v := range vars {
		t.nextID++
		n := &VariableNode{
			ID:        t.nextID,
			Name:      v.Name,
			Value:     v.Value,
			Type:      v.Type,
			Reference: v.Reference,
		}
		if n.Reference < 0 {
			n.Reference = 0
		}
		t.nodes[n.ID] = n
		ids = append(ids, n.ID)
	}
	return ids
}

func (n *VariableNode) clone() VariableNode {
	c := *n
	c.Children = append([]NodeID(nil), n.Children...)
	return c
}
