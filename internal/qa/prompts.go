package qa

import (
	"fmt"
	"strings"
)

// SystemInstruction is sent as the system message on every QA generation call.
const SystemInstruction = `You build supervised fine-tuning data from source material.
You write question/answer pairs that a user could plausibly ask and the author of the
source would answer.

Rules:
- Use only facts stated in the source excerpt. Never add outside knowledge.
- Keep the source's tone, vocabulary and language. If the excerpt is in Spanish, write
  Spanish; if it is informal, stay informal.
- Answers must be self-contained and must not mention "the text" or "the excerpt".
- Skip boilerplate such as navigation menus, page numbers and legal footers.

Output format: a JSON array and nothing else. Each element is
{"messages":[{"role":"system","content":"<training goal>"},{"role":"user","content":"<question>"},{"role":"assistant","content":"<answer>"}]}`

// Limits bounds how many pairs one chunk may yield.
type Limits struct {
	Min int `yaml:"min_pairs"`
	Max int `yaml:"max_pairs"`
}

// DefaultLimits applies to providers that do not override them.
var DefaultLimits = Limits{Min: 2, Max: 15}

// Normalize fills zero values with defaults and keeps Min <= Max.
func (l Limits) Normalize() Limits {
	if l.Min <= 0 {
		l.Min = DefaultLimits.Min
	}
	if l.Max <= 0 {
		l.Max = DefaultLimits.Max
	}
	if l.Min > l.Max {
		l.Min = l.Max
	}
	return l
}

// BuildPrompt renders the user prompt for one chunk.
func BuildPrompt(chunk, trainingGoal string, limits Limits) string {
	limits = limits.Normalize()

	var b strings.Builder
	fmt.Fprintf(&b, "Generate between %d and %d question/answer pairs from the source excerpt below.\n", limits.Min, limits.Max)
	if goal := strings.TrimSpace(trainingGoal); goal != "" {
		fmt.Fprintf(&b, "Training goal (use it verbatim as the system message): %s\n", goal)
	}
	b.WriteString("\nSOURCE EXCERPT:\n")
	b.WriteString(chunk)
	b.WriteString("\n\nReturn only the JSON array.")
	return b.String()
}
