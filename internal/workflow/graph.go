// Package workflow orchestrates the analysis of submitted targets and the
// service's recurring jobs. The fan-out/fan-in analysis is modeled as an
// explicit task graph executed concurrently; branch failures degrade to
// partial results instead of aborting the whole submission.
package workflow

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Inputs carries upstream node results into a node's Run function, keyed
// by node name. A failed upstream node is present with a nil value.
type Inputs map[string]any

// Node is one unit of work in a Graph.
type Node struct {
	Name string

	// Deps are the names of nodes whose results this node consumes. The
	// node runs only after every dependency has finished, successfully
	// or not.
	Deps []string

	Run func(ctx context.Context, in Inputs) (any, error)
}

// Graph is a small static task DAG.
type Graph struct {
	nodes []Node
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Add registers a node. Names must be unique; validation happens at
// execution time.
func (g *Graph) Add(n Node) *Graph {
	g.nodes = append(g.nodes, n)
	return g
}

// Results holds per-node outcomes of one graph execution.
type Results struct {
	mu     sync.Mutex
	values map[string]any
	errs   map[string]error
}

// Value returns the result of a node, nil if it failed or never ran.
func (r *Results) Value(name string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[name]
}

// Err returns the error a node failed with, nil otherwise.
func (r *Results) Err(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[name]
}

func (r *Results) set(name string, v any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = v
	if err != nil {
		r.errs[name] = err
	}
}

func (r *Results) inputs(deps []string) Inputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := make(Inputs, len(deps))
	for _, d := range deps {
		in[d] = r.values[d]
	}
	return in
}

// Execute runs the graph to completion. Nodes with no unfinished
// dependencies run concurrently; a node's failure is recorded and its
// dependents still run with a nil input for it. Execute itself fails only
// on a malformed graph or a canceled context.
func (g *Graph) Execute(ctx context.Context) (*Results, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	results := &Results{
		values: make(map[string]any, len(g.nodes)),
		errs:   make(map[string]error),
	}

	done := make(map[string]chan struct{}, len(g.nodes))
	for _, n := range g.nodes {
		done[n.Name] = make(chan struct{})
	}

	grp, gctx := errgroup.WithContext(ctx)
	for _, n := range g.nodes {
		grp.Go(func() error {
			defer close(done[n.Name])

			for _, dep := range n.Deps {
				select {
				case <-done[dep]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			v, err := n.Run(gctx, results.inputs(n.Deps))
			if err != nil {
				zap.L().Warn("workflow node failed",
					zap.String("node", n.Name),
					zap.Error(err))
				results.set(n.Name, nil, err)
				return nil
			}
			results.set(n.Name, v, nil)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, eris.Wrap(err, "workflow: execute graph")
	}
	return results, nil
}

func (g *Graph) validate() error {
	names := make(map[string]bool, len(g.nodes))
	for _, n := range g.nodes {
		if n.Name == "" {
			return eris.New("workflow: node without a name")
		}
		if names[n.Name] {
			return eris.Errorf("workflow: duplicate node %q", n.Name)
		}
		if n.Run == nil {
			return eris.Errorf("workflow: node %q has no run function", n.Name)
		}
		names[n.Name] = true
	}

	for _, n := range g.nodes {
		for _, dep := range n.Deps {
			if !names[dep] {
				return eris.Errorf("workflow: node %q depends on unknown node %q", n.Name, dep)
			}
		}
	}

	// Cycle check via repeated peeling of dependency-free nodes.
	remaining := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		remaining[n.Name] = append([]string(nil), n.Deps...)
	}
	for len(remaining) > 0 {
		progressed := false
		for name, deps := range remaining {
			ready := true
			for _, d := range deps {
				if _, pending := remaining[d]; pending {
					ready = false
					break
				}
			}
			if ready {
				delete(remaining, name)
				progressed = true
			}
		}
		if !progressed {
			return eris.New("workflow: dependency cycle")
		}
	}
	return nil
}
