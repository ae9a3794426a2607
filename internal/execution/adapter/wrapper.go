package adapter

import (
	"bytes"
	"embed"
	"encoding/json"
	"strings"
	"text/template"

	appErr "codeexec/pkg/errors"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// harnessData is what the harness templates see. Code and Input are already
// string literals, so user text only ever appears inside a quoted literal.
type harnessData struct {
	Code        string
	Input       string
	FromArgv    bool
	OutputLimit int64
}

// embeddedWrapper renders a harness that carries the user code as a literal.
type embeddedWrapper struct {
	template    string
	nullLiteral string
}

func (w embeddedWrapper) Wrap(code string, testInput *string, outputLimit int64) (Program, error) {
	codeLit, err := stringLiteral(code)
	if err != nil {
		return Program{}, err
	}
	inputLit, err := w.inputLiteral(testInput)
	if err != nil {
		return Program{}, err
	}
	text, err := render(w.template, harnessData{Code: codeLit, Input: inputLit, OutputLimit: outputLimit})
	if err != nil {
		return Program{}, err
	}
	return Program{Source: text}, nil
}

func (w embeddedWrapper) inputLiteral(testInput *string) (string, error) {
	if testInput == nil {
		return w.nullLiteral, nil
	}
	return stringLiteral(*testInput)
}

// loaderWrapper keeps the user code verbatim for a build step and renders a
// harness that loads the built artifact named by its first argument.
type loaderWrapper struct {
	template string
}

func (w loaderWrapper) Wrap(code string, testInput *string, outputLimit int64) (Program, error) {
	inputLit := "null"
	if testInput != nil {
		lit, err := stringLiteral(*testInput)
		if err != nil {
			return Program{}, err
		}
		inputLit = lit
	}
	text, err := render(w.template, harnessData{Input: inputLit, FromArgv: true, OutputLimit: outputLimit})
	if err != nil {
		return Program{}, err
	}
	return Program{Source: code, Harness: text}, nil
}

// stringLiteral encodes s as a JSON string, which both Python and
// JavaScript accept as a string literal.
func stringLiteral(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", appErr.Wrapf(err, appErr.InvalidParams, "encode source literal failed")
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func render(name string, data harnessData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "render %s failed", name)
	}
	return buf.String(), nil
}
