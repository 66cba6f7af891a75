package worker

import (
	"fmt"

	"github.com/hupe1980/supervisor/core"
	"github.com/hupe1980/supervisor/logging"
	"github.com/hupe1980/supervisor/model"
	"github.com/hupe1980/supervisor/tool"
)

// Spec declares a model backed worker.
type Spec struct {
	Name         string
	Description  string
	Instructions string
	Tools        []string // built-in tool names
}

// DefaultSpecs is the standard research, analysis, writing and review team.
// Registration order matters for routing.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Name:         "researcher",
			Description:  "Searches for information and gathers data",
			Instructions: "You are a research agent. Search for information and provide comprehensive findings.",
			Tools:        []string{"search_web"},
		},
		{
			Name:         "analyst",
			Description:  "Analyzes data and provides insights",
			Instructions: "You are a data analyst. Analyze information and provide insights.",
			Tools:        []string{"analyze_data"},
		},
		{
			Name:         "writer",
			Description:  "Creates content and documentation",
			Instructions: "You are a content writer. Create well-structured, engaging content.",
			Tools:        []string{"write_content"},
		},
		{
			Name:         "reviewer",
			Description:  "Reviews code and provides feedback",
			Instructions: "You are a code reviewer. Review code and provide constructive feedback.",
			Tools:        []string{"code_review"},
		},
	}
}

// NewTeam builds one ModelWorker per spec, all sharing llm. Names must be
// unique and tools must exist.
func NewTeam(llm model.Model, specs []Spec, logger logging.Logger) ([]core.Worker, error) {
	seen := make(map[string]struct{}, len(specs))
	workers := make([]core.Worker, 0, len(specs))

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("worker name must not be empty")
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate worker %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}

		tools, err := tool.Lookup(spec.Tools...)
		if err != nil {
			return nil, fmt.Errorf("worker %q: %w", spec.Name, err)
		}

		workers = append(workers, NewModelWorker(spec.Name, llm, func(o *ModelWorkerOptions) {
			o.Description = spec.Description
			o.Instructions = spec.Instructions
			o.Tools = tools
			o.Logger = logging.OrNoOp(logger)
		}))
	}

	return workers, nil
}

// DefaultTeam builds the standard team on llm.
func DefaultTeam(llm model.Model, logger logging.Logger) []core.Worker {
	workers, err := NewTeam(llm, DefaultSpecs(), logger)
	if err != nil {
		panic(err) // the default specs are static
	}
	return workers
}
