package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision is the outcome of evaluating the access policy for one
// secured-data query.
type Decision struct {
	Allow  bool   `json:"allow"`
	Region string `json:"region"`
	Reason string `json:"reason"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.secured_search.decision"),
		rego.Module("secured_search.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the data-access policy.
// Input is a map with keys: role, requested_region.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default deny; an empty result set means
		// the module itself is broken.
		return Decision{Reason: "no policy decision"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{Reason: "unexpected policy return type"}, nil
	}

	var d Decision
	if allow, ok := obj["allow"].(bool); ok {
		d.Allow = allow
	}
	if region, ok := obj["region"].(string); ok {
		d.Region = region
	}
	if reason, ok := obj["reason"].(string); ok {
		d.Reason = reason
	}
	return d, nil
}

// DefaultPolicy scopes data access by role. Admins may query any
// region; users are pinned to their home region; everyone else is
// denied.
const DefaultPolicy = `
package secured_search

user_home_region = "region1"

default decision = {"allow": false, "region": "", "reason": "role not permitted"}

decision = {"allow": true, "region": region, "reason": "admin"} {
	input.role == "admin"
	region := object.get(input, "requested_region", "")
}

decision = {"allow": true, "region": user_home_region, "reason": "user home region"} {
	input.role == "user"
	object.get(input, "requested_region", "") == ""
}

decision = {"allow": true, "region": user_home_region, "reason": "user home region"} {
	input.role == "user"
	input.requested_region == user_home_region
}

decision = {"allow": false, "region": "", "reason": "region out of scope"} {
	input.role == "user"
	requested := object.get(input, "requested_region", "")
	requested != ""
	requested != user_home_region
}
`
