package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Prompt names.
const (
	Triage          = "triage.md"
	Analyze         = "analyze.md"
	AnalyzeComplete = "analyze-completion.md"
	Fix             = "fix.md"
)

// OverrideDir is where a repository keeps its own prompts, relative to the
// project root.
const OverrideDir = ".claude/skills/beneissue/prompts"

// Load returns the prompt called name. A file of the same name under
// <projectRoot>/.claude/skills/beneissue/prompts wins over the built-in.
func Load(name, projectRoot string) (string, error) {
	if projectRoot != "" {
		dir := filepath.Join(projectRoot, OverrideDir)
		path := filepath.Join(dir, name)
		absPath, err := filepath.Abs(path)
		if err == nil {
			absDir, err2 := filepath.Abs(dir)
			if err2 == nil && !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
				return "", fmt.Errorf("prompt name %q escapes %s", name, OverrideDir)
			}
		}
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}

	tmpl, ok := builtinTemplates[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	return tmpl, nil
}

// LoadAndRender is Load followed by Render.
func LoadAndRender(name, projectRoot string, vars Vars) (string, error) {
	tmpl, err := Load(name, projectRoot)
	if err != nil {
		return "", err
	}
	out, err := Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

// Names lists the built-in prompt names.
func Names() []string {
	return []string{Triage, Analyze, AnalyzeComplete, Fix}
}
