package graph

// NodeType labels a node in the ownership graph.
type NodeType string

const (
	NodeEntity       NodeType = "Entity"
	NodePerson       NodeType = "Person"
	NodeOfficer      NodeType = "Officer"
	NodeCompany      NodeType = "Company"
	NodeIntermediary NodeType = "Intermediary"
	NodeAddress      NodeType = "Address"
	NodeJurisdiction NodeType = "Jurisdiction"
)

// RelType labels a directed edge between two nodes.
type RelType string

const (
	RelOwns         RelType = "OWNS"
	RelControls     RelType = "CONTROLS"
	RelRegisteredIn RelType = "REGISTERED_IN"
	RelHasAddress   RelType = "HAS_ADDRESS"
	RelCreatedBy    RelType = "CREATED_BY"
	RelInvolvedIn   RelType = "INVOLVED_IN"
	RelConnectedTo  RelType = "CONNECTED_TO"
	RelRelatedTo    RelType = "RELATED_TO"
)

// Direction selects which edges of a node to follow.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

// Node is a vertex in the property graph. Attributes are an open bag of
// scalar properties (name, jurisdiction_code, is_pep, pagerank_score, ...)
// written by the ETL and annotated by the external analytics job. Nodes
// are immutable during analysis.
type Node struct {
	ID    string         `json:"id"`
	Type  NodeType       `json:"type"`
	Attrs map[string]any `json:"attributes,omitempty"`
}

// Edge is a directed relationship between two nodes. Props carries edge
// properties such as ownership_percentage, is_nominee and status.
type Edge struct {
	ID       string         `json:"id"`
	SourceID string         `json:"source_id"`
	TargetID string         `json:"target_id"`
	Type     RelType        `json:"relationship_type"`
	Props    map[string]any `json:"properties,omitempty"`
}

// Path is an ordered chain of edges from a start node. Nodes holds the
// visited nodes in order (len(Nodes) == len(Edges)+1). A path is simple
// (no repeated node) unless it was produced by an explicit cycle search,
// in which case the last node equals the first.
type Path struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Depth returns the hop count of the path.
func (p Path) Depth() int {
	return len(p.Edges)
}

// Start returns the first node of the path.
func (p Path) Start() Node {
	return p.Nodes[0]
}

// End returns the last node of the path.
func (p Path) End() Node {
	return p.Nodes[len(p.Nodes)-1]
}

// IsCycle reports whether the path closes back on its start node.
func (p Path) IsCycle() bool {
	return p.Depth() >= 1 && p.Start().ID == p.End().ID
}

// Jurisdictions returns the distinct jurisdiction codes found on the
// path's nodes, in first-seen order.
func (p Path) Jurisdictions() []string {
	seen := make(map[string]struct{}, len(p.Nodes))
	codes := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		code, ok := n.StringAttr("jurisdiction_code")
		if !ok || code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// Name returns the node's display name, falling back to full_name for
// person records ingested from the officers CSV.
func (n Node) Name() string {
	if v, ok := n.StringAttr("name"); ok && v != "" {
		return v
	}
	if v, ok := n.StringAttr("full_name"); ok {
		return v
	}
	return ""
}

// IsPEP reports whether the node is marked as a politically exposed person.
func (n Node) IsPEP() bool {
	v, _ := n.BoolAttr("is_pep")
	return v
}

// StringAttr returns a string attribute and whether it was present.
func (n Node) StringAttr(key string) (string, bool) {
	v, ok := n.Attrs[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// BoolAttr returns a boolean attribute and whether it was present.
func (n Node) BoolAttr(key string) (bool, bool) {
	v, ok := n.Attrs[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// FloatAttr returns a numeric attribute and whether it was present.
// Integer-typed values are widened, since JSON round-trips and store
// drivers disagree on numeric types.
func (n Node) FloatAttr(key string) (float64, bool) {
	return toFloat(n.Attrs[key])
}

// OwnershipPercentage returns the edge's ownership_percentage property.
// Absence means "unknown", not zero; callers decide how to treat it.
func (e Edge) OwnershipPercentage() (float64, bool) {
	return toFloat(e.Props["ownership_percentage"])
}

// IsNominee reports whether the edge is flagged as a nominee arrangement.
func (e Edge) IsNominee() bool {
	b, _ := e.Props["is_nominee"].(bool)
	return b
}

// Status returns the edge's status property ("Active", "Inactive", ...).
func (e Edge) Status() string {
	s, _ := e.Props["status"].(string)
	return s
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
