package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const teamHCL = `
supervisor {
  instructions = "You coordinate the ${env.TEAM_NAME} team."
}

worker "researcher" {
  description  = "Searches for information"
  instructions = "You are a research agent."
  tools        = ["search_web"]
}

worker "writer" {
  description = "Creates content"
}
`

func TestParseTeam(t *testing.T) {
	t.Setenv("TEAM_NAME", "docs")

	team, err := ParseTeam([]byte(teamHCL), "team.hcl")
	require.NoError(t, err)

	assert.Equal(t, "You coordinate the docs team.", team.SupervisorInstructions)
	require.Len(t, team.Workers, 2)
	assert.Equal(t, "researcher", team.Workers[0].Name)
	assert.Equal(t, []string{"search_web"}, team.Workers[0].Tools)
	assert.Equal(t, "writer", team.Workers[1].Name)
	assert.Empty(t, team.Workers[1].Tools)
}

func TestParseTeamErrors(t *testing.T) {
	_, err := ParseTeam([]byte(`worker "a" {`), "broken.hcl")
	assert.ErrorContains(t, err, "failed to parse HCL file")

	_, err = ParseTeam([]byte(`worker "a" { unknown = 1 }`), "bad.hcl")
	assert.ErrorContains(t, err, "failed to decode HCL file")

	_, err = ParseTeam([]byte(`supervisor {}`), "empty.hcl")
	assert.ErrorContains(t, err, "declares no workers")
}

func TestLoadTeamFromFile(t *testing.T) {
	path := writeFile(t, "team.hcl", `worker "analyst" { tools = ["analyze_data"] }`)

	team, err := LoadTeam(path)
	require.NoError(t, err)
	require.Len(t, team.Workers, 1)
	assert.Equal(t, "analyst", team.Workers[0].Name)
}
