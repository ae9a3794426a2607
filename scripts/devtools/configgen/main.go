// configgen renders exec-service config variants, such as a hardened sandbox
// deployment, from one base YAML plus per-variant overrides. Merging works on
// yaml nodes so the base file's key order and comments survive.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile lists the variants to render.
type Profile struct {
	OutputDir string `yaml:"outputDir"`
	Base      string `yaml:"base"`
	// Shared is applied to every variant before its own overrides.
	Shared   yaml.Node          `yaml:"shared"`
	Variants map[string]Variant `yaml:"variants"`
}

type Variant struct {
	Output    string    `yaml:"output"`
	Overrides yaml.Node `yaml:"overrides"`
}

func main() {
	profilePath := flag.String("profile", "configs/profiles.yaml", "Path to config profile")
	outputDir := flag.String("output-dir", "", "Override output directory")
	flag.Parse()

	written, err := run(*profilePath, *outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
	for _, path := range written {
		fmt.Println(path)
	}
}

// run renders every variant in name order and returns the written paths.
// Relative paths in the profile are resolved against the profile's directory.
func run(profilePath, outputDir string) ([]string, error) {
	profile, dir, err := loadProfile(profilePath)
	if err != nil {
		return nil, err
	}
	if outputDir != "" {
		profile.OutputDir = outputDir
	}
	if profile.OutputDir == "" {
		return nil, errors.New("profile has no output directory")
	}
	outDir := relativeTo(dir, profile.OutputDir)

	names := make([]string, 0, len(profile.Variants))
	for name := range profile.Variants {
		names = append(names, name)
	}
	sort.Strings(names)

	written := make([]string, 0, len(names))
	for _, name := range names {
		// Each variant starts from a fresh parse of the base.
		doc, err := readDocument(relativeTo(dir, profile.Base))
		if err != nil {
			return written, fmt.Errorf("base config: %w", err)
		}
		variant := profile.Variants[name]
		for _, layer := range []*yaml.Node{&profile.Shared, &variant.Overrides} {
			if err := mergeNode(doc.Content[0], layer); err != nil {
				return written, fmt.Errorf("variant %s: %w", name, err)
			}
		}

		output := variant.Output
		if output == "" {
			output = "exec_service." + name + ".yaml"
		}
		path := relativeTo(outDir, output)
		if err := writeDocument(path, doc); err != nil {
			return written, fmt.Errorf("variant %s: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func loadProfile(path string) (*Profile, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", fmt.Errorf("read profile: %w", err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, "", fmt.Errorf("parse profile: %w", err)
	}
	switch {
	case profile.Base == "":
		return nil, "", errors.New("profile has no base config")
	case len(profile.Variants) == 0:
		return nil, "", errors.New("profile has no variants")
	}
	return &profile, filepath.Dir(abs), nil
}

func readDocument(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s is not a mapping", path)
	}
	return &doc, nil
}

func writeDocument(path string, doc *yaml.Node) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// mergeNode folds override into the base mapping in place. Nested mappings
// merge key by key; any other override value replaces the base value. An
// empty override (absent from the profile) is a no-op.
func mergeNode(base, override *yaml.Node) error {
	if override == nil || override.Kind == 0 {
		return nil
	}
	if override.Kind != yaml.MappingNode {
		return fmt.Errorf("override at line %d is not a mapping", override.Line)
	}
	if base.Kind != yaml.MappingNode {
		return fmt.Errorf("base at line %d is not a mapping", base.Line)
	}
	for i := 0; i+1 < len(override.Content); i += 2 {
		key, value := override.Content[i], override.Content[i+1]
		existing := lookup(base, key.Value)
		switch {
		case existing == nil:
			base.Content = append(base.Content, cloneNode(key), cloneNode(value))
		case existing.Kind == yaml.MappingNode && value.Kind == yaml.MappingNode:
			if err := mergeNode(existing, value); err != nil {
				return err
			}
		default:
			*existing = *cloneNode(value)
		}
	}
	return nil
}

// cloneNode deep-copies n so later layers never write into the profile.
func cloneNode(n *yaml.Node) *yaml.Node {
	out := *n
	out.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		out.Content[i] = cloneNode(child)
	}
	return &out
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func relativeTo(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
