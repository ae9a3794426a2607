package adapter

import (
	"fmt"

	appErr "codeexec/pkg/errors"
)

// Override replaces toolchain settings of a built-in language.
type Override struct {
	BuildCmd string   `yaml:"buildCmd"`
	RunCmd   string   `yaml:"runCmd"`
	Env      []string `yaml:"env"`
	Disabled bool     `yaml:"disabled"`
}

type definition struct {
	id          string
	name        string
	mode        Mode
	ext         string
	harnessExt  string
	artifactExt string
	aliases     []string
	buildCmd    string
	runCmd      string
	env         []string
	wrapper     Wrapper
}

var builtins = []definition{
	{
		id:      "python",
		name:    "Python",
		mode:    ModeInterpreted,
		ext:     ".py",
		aliases: []string{"py", "python3"},
		runCmd:  "python3 -B -u {src}",
		env:     []string{"PYTHONIOENCODING=utf-8", "PYTHONDONTWRITEBYTECODE=1"},
		wrapper: embeddedWrapper{template: "python.py.tmpl", nullLiteral: "None"},
	},
	{
		id:      "javascript",
		name:    "JavaScript",
		mode:    ModeInterpreted,
		ext:     ".js",
		aliases: []string{"js", "node", "nodejs"},
		runCmd:  "node {src}",
		wrapper: embeddedWrapper{template: "node.js.tmpl", nullLiteral: "null"},
	},
	{
		id:          "typescript",
		name:        "TypeScript",
		mode:        ModeTranspiled,
		ext:         ".ts",
		harnessExt:  ".js",
		artifactExt: ".js",
		aliases:     []string{"ts"},
		buildCmd:    "tsc --pretty false --target ES2019 --module commonjs --skipLibCheck {src}",
		runCmd:      "node {harness} {artifact}",
		wrapper:     loaderWrapper{template: "node.js.tmpl"},
	},
	{id: "c", name: "C", mode: ModeUnsupported, ext: ".c"},
	{id: "cpp", name: "C++", mode: ModeUnsupported, ext: ".cpp", aliases: []string{"c++", "cxx"}},
	{id: "java", name: "Java", mode: ModeUnsupported, ext: ".java"},
	{id: "go", name: "Go", mode: ModeUnsupported, ext: ".go", aliases: []string{"golang"}},
	{id: "rust", name: "Rust", mode: ModeUnsupported, ext: ".rs", aliases: []string{"rs"}},
	{id: "csharp", name: "C#", mode: ModeUnsupported, ext: ".cs", aliases: []string{"cs", "c#"}},
}

// BuiltinIDs lists the ids of every built-in language.
func BuiltinIDs() []string {
	ids := make([]string, 0, len(builtins))
	for _, def := range builtins {
		ids = append(ids, def.id)
	}
	return ids
}

// DefaultRegistry builds the registry of built-in languages with overrides applied.
func DefaultRegistry(overrides map[string]Override) (*Registry, error) {
	known := make(map[string]bool, len(builtins))
	adapters := make([]*Adapter, 0, len(builtins))
	for _, def := range builtins {
		known[def.id] = true
		override, hasOverride := overrides[def.id]
		if hasOverride && override.Disabled {
			continue
		}
		a, err := newAdapter(def, override)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	for id := range overrides {
		if !known[id] {
			return nil, appErr.Newf(appErr.InvalidParams, "override for unknown language %q", id)
		}
	}
	return NewRegistry(adapters...)
}

func newAdapter(def definition, override Override) (*Adapter, error) {
	a := &Adapter{
		id:          def.id,
		name:        def.name,
		mode:        def.mode,
		ext:         def.ext,
		harnessExt:  def.harnessExt,
		artifactExt: def.artifactExt,
		aliases:     def.aliases,
		env:         append(append([]string(nil), def.env...), override.Env...),
		wrapper:     def.wrapper,
	}
	if def.mode == ModeUnsupported {
		if override.BuildCmd != "" || override.RunCmd != "" {
			return nil, appErr.Newf(appErr.InvalidParams, "%s has no server-side toolchain to override", def.name)
		}
		a.notice = fmt.Sprintf("%s code cannot be executed on the server. Please compile and run it locally.", def.name)
		return a, nil
	}

	a.testInvocation = true
	buildCmd, runCmd := def.buildCmd, def.runCmd
	if override.BuildCmd != "" {
		buildCmd = override.BuildCmd
	}
	if override.RunCmd != "" {
		runCmd = override.RunCmd
	}
	var err error
	if a.build, err = parseCommand(buildCmd); err != nil {
		return nil, err
	}
	if a.run, err = parseCommand(runCmd); err != nil {
		return nil, err
	}
	if len(a.run) == 0 {
		return nil, appErr.Newf(appErr.InvalidParams, "%s requires a run command", def.name)
	}
	if def.mode == ModeTranspiled && len(a.build) == 0 {
		return nil, appErr.Newf(appErr.InvalidParams, "%s requires a build command", def.name)
	}
	return a, nil
}
