package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

// SkillTools returns use_skill, which enables one of skills by name through
// enable. Enabled skills are rendered into the system prompt of the next
// model step.
func SkillTools(skills []ports.Skill, enable func(name string)) []Tool {
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		names = append(names, s.Name)
	}
	enum := make([]any, 0, len(names))
	for _, n := range names {
		enum = append(enum, n)
	}
	return []Tool{Func{
		Def: ports.ToolDefinition{
			Name:        "use_skill",
			Description: "Enable a skill so its instructions are added to your context.",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"skillName": {Type: "string", Description: "Name of the skill to use", Enum: enum},
					"reason":    {Type: "string", Description: "Why this skill is needed"},
				},
				Required: []string{"skillName"},
			},
		},
		Fn: func(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
			name := stringArg(call, "skillName")
			if name == "" {
				return nil, missingArg("skillName")
			}
			if !slices.Contains(names, name) {
				return nil, apperrors.NewPermanentError(fmt.Errorf("unknown skill %q", name),
					fmt.Sprintf("Unknown skill %q. Available skills: %s.", name, strings.Join(names, ", ")))
			}
			enable(name)
			return &ports.ToolResult{Content: fmt.Sprintf(`{"success":true,"skillName":%q}`, name)}, nil
		},
	}}
}
