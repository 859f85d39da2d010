// Package prompt renders the text sent to the generation service.
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// Vars is a map of variable names to values for template rendering.
type Vars map[string]string

// Render expands {{name}} placeholders and {{#if name}}...{{/if}} blocks.
// A block is kept only when its variable is non-empty. Any placeholder
// without a value is an error. Values are inserted verbatim and never
// re-expanded, so file contents containing braces are safe.
func Render(tmpl string, vars Vars) (string, error) {
	resolved, err := processConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	var missing []string
	out := varRe.ReplaceAllStringFunc(resolved, func(match string) string {
		name := match[2 : len(match)-2]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// processConditionals resolves {{#if var}}...{{/if}} blocks innermost first:
// each {{/if}} pairs with the last opening tag before it.
func processConditionals(tmpl string, vars Vars) (string, error) {
	out := tmpl
	for {
		closeIdx := strings.Index(out, ifCloseStr)
		if closeIdx == -1 {
			break
		}
		opens := ifOpenRe.FindAllStringSubmatchIndex(out[:closeIdx], -1)
		if opens == nil {
			return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
		}
		open := opens[len(opens)-1]
		name := out[open[2]:open[3]]

		var body string
		if vars[name] != "" {
			body = out[open[1]:closeIdx]
		}
		out = out[:open[0]] + body + out[closeIdx+len(ifCloseStr):]
	}

	if tag := ifOpenRe.FindString(out); tag != "" {
		return "", fmt.Errorf("unclosed conditional block: %s", tag)
	}
	return out, nil
}

// OverrideDir is where a project may place its own copies of the built-in
// templates, relative to the project root.
const OverrideDir = ".autocoder/templates"

// Template names.
const (
	Generate   = "generate.md"
	Retry      = "retry.md"
	Categorize = "categorize.md"
	Revise     = "revise.md"
)

// Load returns the named template. A file under <projectRoot>/.autocoder/templates
// takes precedence over the built-in copy.
func Load(name string, projectRoot string) (string, error) {
	if projectRoot != "" {
		dir := filepath.Join(projectRoot, OverrideDir)
		p := filepath.Join(dir, name)
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolve template dir: %w", err)
		}
		absPath, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolve template path: %w", err)
		}
		if !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
			return "", fmt.Errorf("template name %q escapes %s", name, OverrideDir)
		}
		data, err := os.ReadFile(p)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read template override %s: %w", p, err)
		}
	}

	tmpl, ok := builtinTemplates[name]
	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}
	return tmpl, nil
}

// LoadAndRender is Load followed by Render.
func LoadAndRender(name string, projectRoot string, vars Vars) (string, error) {
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

// Names lists the built-in templates in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtinTemplates))
	for n := range builtinTemplates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Install writes the built-in templates into <projectRoot>/.autocoder/templates
// so they can be edited. Existing files are kept. It returns the names written.
func Install(projectRoot string) ([]string, error) {
	dir := filepath.Join(projectRoot, OverrideDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}

	var written []string
	for _, name := range Names() {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(builtinTemplates[name]), 0o644); err != nil {
			return written, fmt.Errorf("write template %q: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}
