// Package knowledge models the concept knowledge graph: concepts are
// nodes, edges are typed PREREQUISITE | RELATED | EXTENDS | SIMILAR.
// It feeds the Hint Controller's weighted dependency accounting (a
// concept with unmet prerequisites boosts its hint weight). Retrieval
// does not consult it: retrieval filters use the session's required
// concepts as given.
package knowledge

import (
	"context"
	"errors"
)

// ErrNotFound means the referenced concept id has no node in the graph.
var ErrNotFound = errors.New("knowledge: concept not found")

// RelationType is the closed set of typed edges between concepts.
type RelationType string

const (
	RelationPrerequisite RelationType = "PREREQUISITE"
	RelationRelated      RelationType = "RELATED"
	RelationExtends      RelationType = "EXTENDS"
	RelationSimilar      RelationType = "SIMILAR"
)

// DefaultRelationTypes is the set consulted when a caller does not
// care which relation kind.
func DefaultRelationTypes() []RelationType {
	return []RelationType{RelationPrerequisite, RelationRelated, RelationExtends, RelationSimilar}
}

// Node is one concept in the graph.
type Node struct {
	ID   string
	Name string
}

// Edge is one typed, directed relation between two concepts.
type Edge struct {
	From string
	To   string
	Type RelationType
}

// Port is the capability the Dialog Engine and Hint Controller depend
// on. Implementations must be safe for concurrent use.
type Port interface {
	GetNode(ctx context.Context, conceptID string) (Node, error)
	GetRelatedNodes(ctx context.Context, conceptID string, types []RelationType) ([]Node, error)
	AddNode(ctx context.Context, node Node) error
	AddEdge(ctx context.Context, edge Edge) error
}

// UnmetPrerequisites returns the prerequisite concepts of conceptID
// that are not present in covered. An empty result means either the
// concept has no prerequisites or all of them are already covered.
func UnmetPrerequisites(ctx context.Context, port Port, conceptID string, covered map[string]struct{}) ([]Node, error) {
	prereqs, err := port.GetRelatedNodes(ctx, conceptID, []RelationType{RelationPrerequisite})
	if err != nil {
		return nil, err
	}
	var unmet []Node
	for _, n := range prereqs {
		if _, ok := covered[n.ID]; !ok {
			unmet = append(unmet, n)
		}
	}
	return unmet, nil
}
