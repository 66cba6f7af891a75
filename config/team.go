package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/hupe1980/supervisor/worker"
)

// Team is a decoded team definition.
type Team struct {
	// SupervisorInstructions replaces the routing system prompt when set.
	SupervisorInstructions string
	Workers                []worker.Spec
}

type hclTeamFile struct {
	Supervisor *hclSupervisorBlock `hcl:"supervisor,block"`
	Workers    []*hclWorkerBlock   `hcl:"worker,block"`
}

type hclSupervisorBlock struct {
	Instructions string `hcl:"instructions,optional"`
}

type hclWorkerBlock struct {
	Name         string   `hcl:"name,label"`
	Description  string   `hcl:"description,optional"`
	Instructions string   `hcl:"instructions,optional"`
	Tools        []string `hcl:"tools,optional"`
}

// LoadTeam parses the HCL team file at path.
func LoadTeam(path string) (*Team, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read team file: %w", err)
	}
	return ParseTeam(src, path)
}

// ParseTeam decodes an HCL team definition. Expressions may reference
// environment variables as env.NAME. Worker order in the file is the
// registration order.
//
//	supervisor {
//	  instructions = "You coordinate ${env.TEAM_NAME}."
//	}
//
//	worker "researcher" {
//	  description  = "Searches for information"
//	  instructions = "You are a research agent."
//	  tools        = ["search_web"]
//	}
func ParseTeam(src []byte, filename string) (*Team, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclTeamFile
	diags = gohcl.DecodeBody(file.Body, evalContext(), &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	if len(parsed.Workers) == 0 {
		return nil, fmt.Errorf("team file %s declares no workers", filename)
	}

	team := &Team{Workers: make([]worker.Spec, 0, len(parsed.Workers))}
	if parsed.Supervisor != nil {
		team.SupervisorInstructions = parsed.Supervisor.Instructions
	}

	for _, w := range parsed.Workers {
		team.Workers = append(team.Workers, worker.Spec{
			Name:         w.Name,
			Description:  w.Description,
			Instructions: w.Instructions,
			Tools:        w.Tools,
		})
	}

	return team, nil
}

// evalContext exposes the process environment as the env object.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}
