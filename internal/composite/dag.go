// Package composite implements the DAG-based strategy runner of spec.md §4.11: normalize and
// validate a node/edge graph, topologically sort it (Kahn's algorithm), execute nodes in order
// gated by edge rules, and derive a single output per the configured policy.
//
// Grounded on the teacher's internal/scheduler job-graph-like sequential dispatch (a list of
// named, typed units run by a single driver loop) generalized here into a validated DAG with
// edge-gating and an at-most-one-AI-call invariant spec.md §4.11 step 5 requires.
package composite

import (
	"context"
	"fmt"

	"github.com/sawpanic/controlplane/internal/qualitygate"
)

// NodeKind distinguishes a locally-evaluated strategy node from one that calls out to AI.
type NodeKind string

const (
	NodeLocal NodeKind = "local"
	NodeAI    NodeKind = "ai"
)

// EdgeRule gates whether a dependent node may execute based on its upstream's outcome.
type EdgeRule string

const (
	EdgeAlways               EdgeRule = "always"
	EdgeIfSignalNotNeutral   EdgeRule = "if_signal_not_neutral"
	EdgeIfConfidenceGte      EdgeRule = "if_confidence_gte"
)

// Node is one DAG vertex.
type Node struct {
	ID           string
	Kind         NodeKind
	StrategyType string // for local nodes, the registered handler name
}

// Edge connects From -> To, gating To's execution on From's result per Rule.
type Edge struct {
	From      string
	To        string
	Rule      EdgeRule
	Threshold float64 // required numeric threshold for if_confidence_gte
}

// OutputPolicy selects how the final signal/confidence is derived from executed node results.
type OutputPolicy string

const (
	PolicyFirstNonNeutral       OutputPolicy = "first_non_neutral"
	PolicyOverrideByConfidence  OutputPolicy = "override_by_confidence"
	PolicyLocalSignalAIExplain  OutputPolicy = "local_signal_ai_explain"
)

// CombineMode is currently informational; pipeline is the only mode spec.md names as a default.
type CombineMode string

const PipelineMode CombineMode = "pipeline"

const (
	maxNodes = 30
	maxEdges = 120
)

// Input is the normalized graph plus the run's starting signal/confidence/featureSnapshot.
type Input struct {
	Nodes       []Node
	Edges       []Edge
	CombineMode CombineMode
	OutputPolicy OutputPolicy

	Signal          string
	Confidence      float64
	FeatureSnapshot interface{}
}

func normalize(in *Input) {
	if in.CombineMode == "" {
		in.CombineMode = PipelineMode
	}
	if in.OutputPolicy == "" {
		in.OutputPolicy = PolicyLocalSignalAIExplain
	}
}

// Validate enforces spec.md §4.11 step 2's structural constraints.
func Validate(in Input) error {
	if len(in.Nodes) == 0 {
		return fmt.Errorf("composite: nodes must be non-empty")
	}
	if len(in.Nodes) > maxNodes {
		return fmt.Errorf("composite: %d nodes exceeds max %d", len(in.Nodes), maxNodes)
	}
	if len(in.Edges) > maxEdges {
		return fmt.Errorf("composite: %d edges exceeds max %d", len(in.Edges), maxEdges)
	}
	ids := make(map[string]bool, len(in.Nodes))
	for _, n := range in.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("composite: duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
	}
	for _, e := range in.Edges {
		if e.From == e.To {
			return fmt.Errorf("composite: self-loop on node %q", e.From)
		}
		if !ids[e.From] {
			return fmt.Errorf("composite: edge references unknown node %q", e.From)
		}
		if !ids[e.To] {
			return fmt.Errorf("composite: edge references unknown node %q", e.To)
		}
		if e.Rule == EdgeIfConfidenceGte && e.Threshold == 0 {
			return fmt.Errorf("composite: if_confidence_gte edge %s->%s requires a non-zero numeric threshold", e.From, e.To)
		}
	}
	if _, err := topoSort(in.Nodes, in.Edges); err != nil {
		return err
	}
	return nil
}

// topoSort implements Kahn's algorithm, returning an error if the graph has a cycle.
func topoSort(nodes []Node, edges []Edge) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n.ID] = 0
	}
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
		indegree[e.To]++
	}

	var queue []string
	for _, n := range nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, next := range adj[cur] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, fmt.Errorf("composite: graph contains a cycle")
	}
	return order, nil
}

// LocalHandler is C12's built-in/python-dispatching strategy interface, invoked for NodeLocal.
type LocalHandler interface {
	Evaluate(ctx context.Context, strategyType string, signal string, confidence float64, featureSnapshot interface{}) (HandlerResult, error)
}

// HandlerResult is what a local strategy handler returns.
type HandlerResult struct {
	Allow       bool
	Score       float64
	ReasonCodes []string
	Tags        []string
	Explanation string
	Meta        map[string]interface{}
}

// AIGate decides admission for the single AI node a composite run may invoke (C10).
type AIGate interface {
	ShouldInvoke(ctx context.Context) (qualitygate.Decision, error)
}

// AIExplainer performs the actual AI call once admitted.
type AIExplainer func(ctx context.Context, signal string, confidence float64, featureSnapshot interface{}) (signalOut string, confidenceOut float64, tags []string, err error)

// Deps bundles the external collaborators a composite run needs.
type Deps struct {
	Local   LocalHandler
	AIGate  AIGate
	Explain AIExplainer
}

// NodeExecResult records one node's outcome for the final report.
type NodeExecResult struct {
	NodeID         string
	Executed       bool
	SkippedReason  string
	Signal         string
	Confidence     float64
	Tags           []string
	ReasonCodes    []string
	Explanation    string
}

// Result is runCompositeStrategy's overall output.
type Result struct {
	FinalSignal     string
	FinalConfidence float64
	Tags            []string
	Drivers         []string
	NodeResults     []NodeExecResult
}

// Run implements spec.md §4.11's full flow: normalize, validate, topo-sort, execute with edge
// gating, enforce at-most-one AI call, then derive output per the configured policy.
func Run(ctx context.Context, in Input, deps Deps) (Result, error) {
	normalize(&in)
	if err := Validate(in); err != nil {
		return Result{}, err
	}
	order, err := topoSort(in.Nodes, in.Edges)
	if err != nil {
		return Result{}, err
	}

	nodeByID := make(map[string]Node, len(in.Nodes))
	for _, n := range in.Nodes {
		nodeByID[n.ID] = n
	}
	incoming := make(map[string][]Edge, len(in.Nodes))
	for _, e := range in.Edges {
		incoming[e.To] = append(incoming[e.To], e)
	}

	results := make(map[string]NodeExecResult, len(in.Nodes))
	aiCalled := false
	var ordered []NodeExecResult

	for _, id := range order {
		n := nodeByID[id]

		if skip := gateCheck(incoming[id], results); skip != "" {
			r := NodeExecResult{NodeID: id, Executed: false, SkippedReason: skip}
			results[id] = r
			ordered = append(ordered, r)
			continue
		}

		var r NodeExecResult
		switch n.Kind {
		case NodeLocal:
			r = execLocal(ctx, n, in, deps)
		case NodeAI:
			if aiCalled {
				r = NodeExecResult{NodeID: id, Executed: false, SkippedReason: "ai_call_budget_exceeded"}
			} else {
				r, aiCalled = execAI(ctx, n, in, deps)
			}
		default:
			r = NodeExecResult{NodeID: id, Executed: false, SkippedReason: "unknown_node_kind"}
		}
		results[id] = r
		ordered = append(ordered, r)
	}

	return deriveOutput(in, ordered), nil
}

// gateCheck returns a skip reason if any incoming edge's dependency didn't execute or its rule
// doesn't hold; empty string means the node may execute.
func gateCheck(edges []Edge, results map[string]NodeExecResult) string {
	for _, e := range edges {
		dep, ok := results[e.From]
		if !ok || !dep.Executed {
			return fmt.Sprintf("dependency_%s_not_executed", e.From)
		}
		switch e.Rule {
		case EdgeAlways, "":
			// no additional condition
		case EdgeIfSignalNotNeutral:
			if dep.Signal == "" || dep.Signal == "neutral" {
				return fmt.Sprintf("edge_rule_if_signal_not_neutral_failed_on_%s", e.From)
			}
		case EdgeIfConfidenceGte:
			if dep.Confidence < e.Threshold {
				return fmt.Sprintf("edge_rule_if_confidence_gte_failed_on_%s", e.From)
			}
		}
	}
	return ""
}

func execLocal(ctx context.Context, n Node, in Input, deps Deps) NodeExecResult {
	if deps.Local == nil {
		return NodeExecResult{NodeID: n.ID, Executed: false, SkippedReason: "no_local_handler_configured"}
	}
	hr, err := deps.Local.Evaluate(ctx, n.StrategyType, in.Signal, in.Confidence, in.FeatureSnapshot)
	if err != nil {
		return NodeExecResult{NodeID: n.ID, Executed: false, SkippedReason: "handler_error:" + err.Error()}
	}
	outSignal := in.Signal
	outConfidence := min64(in.Confidence, hr.Score)
	if hr.Allow {
		outConfidence = max64(in.Confidence, hr.Score)
	} else {
		outSignal = "neutral"
	}
	return NodeExecResult{
		NodeID: n.ID, Executed: true, Signal: outSignal, Confidence: outConfidence,
		Tags: hr.Tags, ReasonCodes: hr.ReasonCodes, Explanation: hr.Explanation,
	}
}

func execAI(ctx context.Context, n Node, in Input, deps Deps) (NodeExecResult, bool) {
	if deps.AIGate == nil || deps.Explain == nil {
		return NodeExecResult{NodeID: n.ID, Executed: false, SkippedReason: "no_ai_collaborator_configured"}, false
	}
	decision, err := deps.AIGate.ShouldInvoke(ctx)
	if err != nil || !decision.Allow {
		reason := "ai_gate_blocked"
		if len(decision.ReasonCodes) > 0 {
			reason = decision.ReasonCodes[0]
		}
		return NodeExecResult{NodeID: n.ID, Executed: false, SkippedReason: reason}, false
	}
	sig, conf, tags, err := deps.Explain(ctx, in.Signal, in.Confidence, in.FeatureSnapshot)
	if err != nil {
		return NodeExecResult{NodeID: n.ID, Executed: false, SkippedReason: "ai_explain_error:" + err.Error()}, true
	}
	finalSignal := sig
	if in.OutputPolicy == PolicyLocalSignalAIExplain {
		finalSignal = in.Signal
	}
	return NodeExecResult{NodeID: n.ID, Executed: true, Signal: finalSignal, Confidence: conf, Tags: tags}, true
}

// deriveOutput applies spec.md §4.11 step 6-7.
func deriveOutput(in Input, ordered []NodeExecResult) Result {
	res := Result{FinalSignal: in.Signal, FinalConfidence: in.Confidence, NodeResults: ordered}

	switch in.OutputPolicy {
	case PolicyFirstNonNeutral:
		for _, r := range ordered {
			if r.Executed && r.Signal != "" && r.Signal != "neutral" {
				res.FinalSignal = r.Signal
				res.FinalConfidence = r.Confidence
				break
			}
		}
	case PolicyOverrideByConfidence:
		best := -1.0
		found := false
		for _, r := range ordered {
			if r.Executed && r.Signal != "" && r.Signal != "neutral" && r.Confidence > best {
				best = r.Confidence
				res.FinalSignal = r.Signal
				res.FinalConfidence = r.Confidence
				found = true
			}
		}
		if !found {
			res.FinalSignal = in.Signal
			res.FinalConfidence = in.Confidence
		}
	case PolicyLocalSignalAIExplain:
		for _, r := range ordered {
			if r.Executed && r.Signal != "" && r.Signal != "neutral" {
				res.FinalSignal = r.Signal
				res.FinalConfidence = r.Confidence
			}
		}
	}

	res.Tags = mergeTags(ordered, 20)
	res.Drivers = mergeDrivers(ordered, 10)
	return res
}

func mergeTags(ordered []NodeExecResult, cap int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range ordered {
		for _, tag := range r.Tags {
			if seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
			if len(out) >= cap {
				return out
			}
		}
	}
	return out
}

func mergeDrivers(ordered []NodeExecResult, cap int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range ordered {
		for _, code := range r.ReasonCodes {
			if seen[code] {
				continue
			}
			seen[code] = true
			out = append(out, code)
			if len(out) >= cap {
				return out
			}
		}
	}
	return out
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
