package graph

import (
	"fmt"
	"log/slog"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
)

// Graph is the immutable execution plan derived from a workflow document:
// a deterministic topological order plus the flattened data routes.
type Graph struct {
	ExecutionOrder  []string
	Dependencies    map[string][]string
	Dependents      map[string][]string
	DataConnections []domain.DataConnection
}

type Builder struct {
	logger *slog.Logger
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger.With("component", "graph-builder")}
}

// Build validates the document structure and computes the execution plan.
// Any structural defect aborts before a single node can be dispatched.
func (b *Builder) Build(doc *domain.WorkflowDocument, registry ports.ExecutorRegistry, predicates map[string]domain.EdgePredicate) (*Graph, error) {
	if doc == nil {
		return nil, domain.NewValidationError("document", "workflow document is nil")
	}
	if len(doc.Nodes) == 0 {
		return nil, domain.NewValidationError("nodes", "workflow must contain at least one node")
	}

	b.logger.Debug("building execution graph", "workflow_id", doc.ID, "nodes", len(doc.Nodes), "edges", len(doc.Edges))

	seen := make(map[string]struct{}, len(doc.Nodes))
	for _, node := range doc.Nodes {
		if node.ID == "" {
			return nil, domain.NewValidationError("nodes", "node id cannot be empty")
		}
		if _, dup := seen[node.ID]; dup {
			return nil, domain.NewValidationError("nodes", "duplicate node id: "+node.ID)
		}
		seen[node.ID] = struct{}{}

		if registry != nil && !registry.Has(node.Type) {
			return nil, domain.NewValidationError("nodes", fmt.Sprintf("node %s references unknown type %q", node.ID, node.Type))
		}
	}

	dependencies := make(map[string][]string, len(doc.Nodes))
	dependents := make(map[string][]string, len(doc.Nodes))
	indegree := make(map[string]int, len(doc.Nodes))
	for _, node := range doc.Nodes {
		indegree[node.ID] = 0
	}

	connections := make([]domain.DataConnection, 0, len(doc.Edges))
	for _, edge := range doc.Edges {
		if _, ok := seen[edge.From]; !ok {
			return nil, domain.NewValidationError("edges", fmt.Sprintf("edge %s references unknown source node %s", edge.ID, edge.From))
		}
		if _, ok := seen[edge.To]; !ok {
			return nil, domain.NewValidationError("edges", fmt.Sprintf("edge %s references unknown target node %s", edge.ID, edge.To))
		}

		dependents[edge.From] = append(dependents[edge.From], edge.To)
		dependencies[edge.To] = append(dependencies[edge.To], edge.From)
		indegree[edge.To]++

		// Empty handles route the source's entire output map; a named
		// source handle routes that single output key. A missing target
		// handle inherits the source handle.
		targetKey := edge.Meta.TargetHandle
		if targetKey == "" {
			targetKey = edge.Meta.SourceHandle
		}

		conn := domain.DataConnection{
			SourceNode: edge.From,
			SourceKey:  edge.Meta.SourceHandle,
			TargetNode: edge.To,
			TargetKey:  targetKey,
		}
		if predicates != nil {
			conn.Predicate = predicates[edge.ID]
		}
		connections = append(connections, conn)
	}

	order, err := b.topologicalOrder(doc, indegree, dependents)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("execution graph built", "workflow_id", doc.ID, "order_length", len(order), "connections", len(connections))

	return &Graph{
		ExecutionOrder:  order,
		Dependencies:    dependencies,
		Dependents:      dependents,
		DataConnections: connections,
	}, nil
}

// topologicalOrder runs Kahn's algorithm with a FIFO ready queue seeded in
// declaration order, which makes the tie-break deterministic.
func (b *Builder) topologicalOrder(doc *domain.WorkflowDocument, indegree map[string]int, dependents map[string][]string) ([]string, error) {
	remaining := make(map[string]int, len(indegree))
	for id, deg := range indegree {
		remaining[id] = deg
	}

	queue := make([]string, 0, len(doc.Nodes))
	for _, node := range doc.Nodes {
		if remaining[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	order := make([]string, 0, len(doc.Nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range dependents[current] {
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(doc.Nodes) {
		cyclic := make([]string, 0)
		for id, deg := range remaining {
			if deg > 0 {
				cyclic = append(cyclic, id)
			}
		}
		return nil, domain.NewValidationError("cycle", fmt.Sprintf("workflow graph contains a cycle involving nodes %v", cyclic))
	}

	return order, nil
}
