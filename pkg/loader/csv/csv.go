// Package csv parses the ICIJ-style property graph bundle: one CSV per
// node kind (nodes-entities.csv, nodes-officers.csv,
// nodes-intermediaries.csv, nodes-addresses.csv) plus relationships.csv.
// The column layout follows the published leak datasets; header variants
// are normalized so old and new exports both load.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/store"
)

// Filenames of the bundle, keyed by the node type each file carries.
var NodeFiles = map[string]graph.NodeType{
	"nodes-entities.csv":       graph.NodeEntity,
	"nodes-officers.csv":       graph.NodeOfficer,
	"nodes-intermediaries.csv": graph.NodeIntermediary,
	"nodes-addresses.csv":      graph.NodeAddress,
}

// RelationshipsFile is the edge list of the bundle.
const RelationshipsFile = "relationships.csv"

// idColumns lists the id header variants across dataset versions, most
// specific first.
var idColumns = []string{"node_id", "entity_id", "officer_id", "intermediary_id", "address_id", "id"}

// columnRenames normalizes legacy headers onto the attribute names the
// analysis code reads.
var columnRenames = map[string]string{
	"jurisdiction":             "jurisdiction_code",
	"jurisdiction_description": "jurisdiction_name",
	"sourceID":                 "source",
	"countries":                "country",
	"country_codes":            "country_code",
}

// relTypeMap maps the free-text link descriptions of relationships.csv
// onto relationship types. Unknown links become CONNECTED_TO.
var relTypeMap = map[string]graph.RelType{
	"officer_of":                         graph.RelInvolvedIn,
	"director of":                        graph.RelInvolvedIn,
	"shareholder of":                     graph.RelOwns,
	"beneficial owner of":                graph.RelOwns,
	"beneficiary of":                     graph.RelOwns,
	"nominee shareholder of":             graph.RelOwns,
	"nominee director of":                graph.RelInvolvedIn,
	"registered_address":                 graph.RelHasAddress,
	"registered address":                 graph.RelHasAddress,
	"intermediary_of":                    graph.RelCreatedBy,
	"intermediary of":                    graph.RelCreatedBy,
	"similar name and address as":        graph.RelConnectedTo,
	"same name and registration date as": graph.RelConnectedTo,
	"same address as":                    graph.RelConnectedTo,
	"related entity":                     graph.RelConnectedTo,
	"underlying":                         graph.RelControls,
	"protector of":                       graph.RelControls,
	"secretary of":                       graph.RelInvolvedIn,
	"auditor of":                         graph.RelInvolvedIn,
	"power of attorney of":               graph.RelInvolvedIn,
	"signatory of":                       graph.RelInvolvedIn,
}

// ParseNodes reads one node CSV and returns nodes of the given type.
// Rows without an id are skipped; empty cells produce no attribute.
func ParseNodes(r io.Reader, typ graph.NodeType) ([]graph.Node, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idIdx := indexOfID(header)
	if idIdx < 0 {
		return nil, fmt.Errorf("no id column among %v", header)
	}

	var nodes []graph.Node
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if idIdx >= len(row) || strings.TrimSpace(row[idIdx]) == "" {
			continue
		}

		attrs := make(map[string]any)
		for i, col := range header {
			if i == idIdx || i >= len(row) {
				continue
			}
			val := strings.TrimSpace(row[i])
			if val == "" {
				continue
			}
			name := col
			if renamed, ok := columnRenames[col]; ok {
				name = renamed
			}
			attrs[name] = val
		}
		if len(attrs) == 0 {
			attrs = nil
		}
		nodes = append(nodes, graph.Node{
			ID:    strings.TrimSpace(row[idIdx]),
			Type:  typ,
			Attrs: attrs,
		})
	}
	return nodes, nil
}

// ParseRelationships reads relationships.csv. Edge ids are synthesized
// from the bundle name and row position: re-importing the same bundle is
// idempotent, while rows from distinct bundles never collide.
func ParseRelationships(r io.Reader, bundle string) ([]graph.Edge, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := func(names ...string) int {
		for _, want := range names {
			for i, h := range header {
				if strings.EqualFold(h, want) {
					return i
				}
			}
		}
		return -1
	}
	srcIdx := col("START_ID", "source_id", "node_id_start")
	dstIdx := col("END_ID", "target_id", "node_id_end")
	if srcIdx < 0 || dstIdx < 0 {
		return nil, fmt.Errorf("no source/target columns among %v", header)
	}
	typeIdx := col("TYPE", "rel_type")
	linkIdx := col("link")
	pctIdx := col("ownership_percentage", "percentage")
	statusIdx := col("status")
	startIdx := col("start_date")
	endIdx := col("end_date")
	sourceIdx := col("sourceID", "source")

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var edges []graph.Edge
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++

		src := cell(row, srcIdx)
		dst := cell(row, dstIdx)
		if src == "" || dst == "" {
			continue
		}

		link := strings.ToLower(cell(row, linkIdx))
		relType := mapRelType(strings.ToLower(cell(row, typeIdx)), link)

		props := make(map[string]any)
		if link != "" {
			props["link"] = link
		}
		if strings.Contains(link, "nominee") {
			props["is_nominee"] = true
		}
		if pct := cell(row, pctIdx); pct != "" {
			// Percentages must land in [0,100]; anything else is bad
			// data and is dropped so the hop counts as unknown.
			if v, err := strconv.ParseFloat(pct, 64); err == nil && v >= 0 && v <= 100 {
				props["ownership_percentage"] = v
			}
		}
		if v := cell(row, statusIdx); v != "" {
			props["status"] = v
		}
		if v := cell(row, startIdx); v != "" {
			props["start_date"] = v
		}
		if v := cell(row, endIdx); v != "" {
			props["end_date"] = v
		}
		if v := cell(row, sourceIdx); v != "" {
			props["source"] = v
		}
		if len(props) == 0 {
			props = nil
		}

		edges = append(edges, graph.Edge{
			ID:       edgeID(bundle, line),
			SourceID: src,
			TargetID: dst,
			Type:     relType,
			Props:    props,
		})
	}
	return edges, nil
}

func edgeID(bundle string, line int) string {
	if bundle == "" {
		return fmt.Sprintf("rel-%08d", line)
	}
	return fmt.Sprintf("%s#rel-%08d", strings.TrimSuffix(bundle, "/"), line)
}

func mapRelType(rawType, link string) graph.RelType {
	if rt, ok := relTypeMap[rawType]; ok {
		return rt
	}
	if rt, ok := relTypeMap[link]; ok {
		return rt
	}
	// Already-normalized exports carry the final type directly.
	switch graph.RelType(strings.ToUpper(rawType)) {
	case graph.RelOwns, graph.RelControls, graph.RelRegisteredIn, graph.RelHasAddress,
		graph.RelCreatedBy, graph.RelInvolvedIn, graph.RelConnectedTo, graph.RelRelatedTo:
		return graph.RelType(strings.ToUpper(rawType))
	}
	return graph.RelConnectedTo
}

func indexOfID(header []string) int {
	for _, want := range idColumns {
		for i, h := range header {
			if strings.EqualFold(h, want) {
				return i
			}
		}
	}
	return -1
}

// LoadNodes writes parsed nodes in batches of batchSize.
func LoadNodes(ctx context.Context, w store.GraphWriter, nodes []graph.Node, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	for start := 0; start < len(nodes); start += batchSize {
		end := start + batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		if err := w.UpsertNodes(ctx, nodes[start:end]); err != nil {
			return fmt.Errorf("upsert nodes %d..%d: %w", start, end, err)
		}
	}
	return nil
}

// LoadEdges writes parsed edges in batches of batchSize.
func LoadEdges(ctx context.Context, w store.GraphWriter, edges []graph.Edge, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	for start := 0; start < len(edges); start += batchSize {
		end := start + batchSize
		if end > len(edges) {
			end = len(edges)
		}
		if err := w.UpsertEdges(ctx, edges[start:end]); err != nil {
			return fmt.Errorf("upsert edges %d..%d: %w", start, end, err)
		}
	}
	return nil
}
