package deploy

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// Contract names deployed by the default plan.
const (
	UserRegistry           = "UserRegistry"
	ProviderRegistry       = "ProviderRegistry"
	PreConfCommitmentStore = "PreConfCommitmentStore"
)

// ArgsFunc builds constructor arguments from the run parameters and the confirmed
// addresses of the step's dependencies. deps holds exactly the names in DependsOn.
type ArgsFunc func(p Params, deps map[string]common.Address) []any

// Step is one contract deployment in a plan.
type Step struct {
	Contract  string
	DependsOn []string
	Args      ArgsFunc
}

// Plan is a validated DAG of steps grouped into topological levels.
// Steps in a level have no dependencies on each other.
type Plan struct {
	steps  []Step
	index  map[string]int
	levels [][]int
}

// NewPlan validates steps and computes their levels.
func NewPlan(steps ...Step) (*Plan, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyPlan
	}

	p := &Plan{
		steps: steps,
		index: make(map[string]int, len(steps)),
	}
	for i, s := range steps {
		if _, dup := p.index[s.Contract]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateContract, s.Contract)
		}
		p.index[s.Contract] = i
	}

	inDegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, s := range steps {
		for _, dep := range s.DependsOn {
			if dep == s.Contract {
				return nil, fmt.Errorf("%w: %s", ErrSelfDependency, s.Contract)
			}
			j, ok := p.index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownDependency, s.Contract, dep)
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// Kahn's algorithm, one level at a time.
	var current []int
	for i := range steps {
		if inDegree[i] == 0 {
			current = append(current, i)
		}
	}
	visited := 0
	for len(current) > 0 {
		p.levels = append(p.levels, current)
		visited += len(current)

		var next []int
		for _, i := range current {
			for _, d := range dependents[i] {
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		slices.Sort(next)
		current = next
	}
	if visited != len(steps) {
		return nil, ErrCyclicDependency
	}

	return p, nil
}

// DefaultPlan returns the fixed PreConf topology: the two registries first, then the
// commitment store wired to both of them and the oracle.
func DefaultPlan() *Plan {
	registryArgs := func(p Params, _ map[string]common.Address) []any {
		return []any{p.MinStake, p.FeeRecipient, p.FeePercent}
	}

	plan, err := NewPlan(
		Step{Contract: UserRegistry, Args: registryArgs},
		Step{Contract: ProviderRegistry, Args: registryArgs},
		Step{
			Contract:  PreConfCommitmentStore,
			DependsOn: []string{UserRegistry, ProviderRegistry},
			Args: func(p Params, deps map[string]common.Address) []any {
				return []any{deps[UserRegistry], deps[ProviderRegistry], p.Oracle}
			},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("default plan is invalid: %v", err))
	}
	return plan
}

// Contracts returns the contract names in plan order.
func (p *Plan) Contracts() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Contract
	}
	return names
}

// Levels returns the contract names grouped by topological level.
func (p *Plan) Levels() [][]string {
	out := make([][]string, len(p.levels))
	for i, level := range p.levels {
		for _, idx := range level {
			out[i] = append(out[i], p.steps[idx].Contract)
		}
	}
	return out
}
