// Package adapter holds the per-language strategies: how user code is wrapped,
// which toolchain commands build and run it, and which languages are refused.
package adapter

import (
	"path/filepath"
	"regexp"
	"strings"

	appErr "codeexec/pkg/errors"

	"github.com/google/shlex"
)

// Mode tells the orchestrator which pipeline a language goes through.
type Mode string

const (
	ModeInterpreted Mode = "interpreted"
	ModeTranspiled  Mode = "transpiled"
	ModeUnsupported Mode = "unsupported"
)

// Files names the scratch paths of one execution.
type Files struct {
	Dir      string
	Source   string
	Harness  string
	Artifact string
}

// Map applies fn to every non-empty path.
func (f Files) Map(fn func(string) string) Files {
	apply := func(p string) string {
		if p == "" {
			return ""
		}
		return fn(p)
	}
	return Files{
		Dir:      apply(f.Dir),
		Source:   apply(f.Source),
		Harness:  apply(f.Harness),
		Artifact: apply(f.Artifact),
	}
}

// Program is the wrapped form of a submission ready to be written to disk.
type Program struct {
	// Source is written with the adapter's file extension.
	Source string
	// Harness is an optional runner script written next to Source.
	Harness string
}

// Wrapper turns user code into a Program. outputLimit is the byte budget of
// the run; a harness that buffers output stops the program once it holds
// more than that. Zero means unlimited.
type Wrapper interface {
	Wrap(code string, testInput *string, outputLimit int64) (Program, error)
}

// Adapter is an immutable language descriptor built once at startup.
type Adapter struct {
	id             string
	name           string
	mode           Mode
	ext            string
	harnessExt     string
	artifactExt    string
	aliases        []string
	build          commandTemplate
	run            commandTemplate
	env            []string
	wrapper        Wrapper
	testInvocation bool
	notice         string
}

func (a *Adapter) ID() string                   { return a.id }
func (a *Adapter) Name() string                 { return a.name }
func (a *Adapter) Mode() Mode                   { return a.mode }
func (a *Adapter) FileExtension() string        { return a.ext }
func (a *Adapter) SupportsTestInvocation() bool { return a.testInvocation }

// Aliases returns alternative ids that resolve to this adapter.
func (a *Adapter) Aliases() []string {
	return append([]string(nil), a.aliases...)
}

// Env returns extra environment entries for every process of this language.
func (a *Adapter) Env() []string {
	return append([]string(nil), a.env...)
}

// Notice is the informational message returned for unsupported languages.
func (a *Adapter) Notice() string {
	return a.notice
}

// Wrap produces the program to materialize.
func (a *Adapter) Wrap(code string, testInput *string, outputLimit int64) (Program, error) {
	if a.mode == ModeUnsupported || a.wrapper == nil {
		return Program{}, appErr.Newf(appErr.LanguageNotSupported, "%s cannot be executed on the server", a.name)
	}
	return a.wrapper.Wrap(code, testInput, max(outputLimit, 0))
}

// Layout returns the host paths used for a scratch directory and id.
func (a *Adapter) Layout(dir, id string) Files {
	files := Files{
		Dir:    dir,
		Source: filepath.Join(dir, id+a.ext),
	}
	if a.harnessExt != "" {
		files.Harness = filepath.Join(dir, id+".harness"+a.harnessExt)
	}
	if a.artifactExt != "" {
		files.Artifact = filepath.Join(dir, id+a.artifactExt)
	}
	return files
}

// BuildCommand returns nil when the language has no build step.
func (a *Adapter) BuildCommand(files Files) []string {
	return a.build.expand(files)
}

// RunCommand returns the argv that executes the program.
func (a *Adapter) RunCommand(files Files) []string {
	return a.run.expand(files)
}

// Toolchain lists the executables the adapter invokes.
func (a *Adapter) Toolchain() []string {
	var tools []string
	for _, tpl := range []commandTemplate{a.build, a.run} {
		if len(tpl) > 0 {
			tools = append(tools, tpl[0])
		}
	}
	return tools
}

var placeholderPattern = regexp.MustCompile(`\{[a-z]+\}`)

var knownPlaceholders = map[string]bool{
	"{src}":      true,
	"{harness}":  true,
	"{artifact}": true,
	"{dir}":      true,
}

// commandTemplate is a command line already split into argv tokens.
// Placeholders are substituted per token so paths are never re-parsed.
type commandTemplate []string

func parseCommand(tpl string) (commandTemplate, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, nil
	}
	fields, err := shlex.Split(tpl)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is empty")
	}
	for _, field := range fields {
		for _, ph := range placeholderPattern.FindAllString(field, -1) {
			if !knownPlaceholders[ph] {
				return nil, appErr.Newf(appErr.InvalidParams, "unknown placeholder %s in %q", ph, tpl)
			}
		}
	}
	return commandTemplate(fields), nil
}

func (c commandTemplate) expand(files Files) []string {
	if len(c) == 0 {
		return nil
	}
	replacer := strings.NewReplacer(
		"{src}", files.Source,
		"{harness}", files.Harness,
		"{artifact}", files.Artifact,
		"{dir}", files.Dir,
	)
	argv := make([]string, len(c))
	for i, token := range c {
		argv[i] = replacer.Replace(token)
	}
	return argv
}
