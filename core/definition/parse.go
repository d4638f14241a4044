// Package definition reads resource definitions from files.
//
// Definitions are YAML or JSON documents. Mapping order is preserved so
// that properties keep the order they were written in. A directory stands
// for the resource.yaml, resource.yml or resource.json file it contains.
package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/resource"
	"github.com/artpar/resrun/core/value"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Extensions lists the recognized definition file extensions, in lookup
// order.
var Extensions = []string{".yaml", ".yml", ".json"}

// IndexName is the base name of the definition file of a directory.
const IndexName = "resource"

// Parse parses a definition from YAML or JSON bytes.
func Parse(data []byte) (any, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, errs.Wrap(errs.CodeDefinition, err, "parse definition")
	}
	def, err := value.FromNode(&node)
	if err != nil {
		return nil, errs.Wrap(errs.CodeDefinition, err, "parse definition")
	}
	return def, nil
}

// ParseFile parses the definition file at path, or the index file of the
// directory at path.
func ParseFile(path string) (resource.Source, error) {
	file, err := Resolve(path)
	if err != nil {
		return resource.Source{}, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return resource.Source{}, fmt.Errorf("read file %s: %w", file, err)
	}

	def, err := Parse(data)
	if err != nil {
		return resource.Source{}, errs.With(err, "%s", file)
	}

	return resource.Source{
		Definition: def,
		Location:   file,
		Dir:        filepath.Dir(file),
	}, nil
}

// ParseDir parses all definition files of a directory, including
// subdirectories, in lexical order.
func ParseDir(dir string) ([]resource.Source, error) {
	var sources []resource.Source

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := ParseDir(path)
			if err != nil {
				return nil, err
			}
			sources = append(sources, sub...)
			continue
		}

		if !IsDefinitionFile(entry.Name()) {
			continue
		}

		src, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// ParseGlob parses every definition file matching a doublestar pattern
// such as "defs/**/*.yaml".
func ParseGlob(pattern string) ([]resource.Source, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	var sources []resource.Source
	for _, m := range matches {
		if !IsDefinitionFile(m) {
			continue
		}
		src, err := ParseFile(m)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// ParsePaths parses each entry of paths: a glob pattern, a directory or a
// single file. Duplicates are parsed once.
func ParsePaths(paths []string) ([]resource.Source, error) {
	seen := make(map[string]bool)
	var sources []resource.Source
	add := func(batch []resource.Source) {
		for _, s := range batch {
			if !seen[s.Location] {
				seen[s.Location] = true
				sources = append(sources, s)
			}
		}
	}

	for _, p := range paths {
		switch info, err := os.Stat(p); {
		case strings.ContainsAny(p, "*?[{"):
			batch, err := ParseGlob(p)
			if err != nil {
				return nil, err
			}
			add(batch)
		case err != nil:
			return nil, errs.Wrap(errs.CodeNotFound, err, "definition path %s", p)
		case info.IsDir():
			batch, err := ParseDir(p)
			if err != nil {
				return nil, err
			}
			add(batch)
		default:
			src, err := ParseFile(p)
			if err != nil {
				return nil, err
			}
			add([]resource.Source{src})
		}
	}
	return sources, nil
}

// Resolve maps path to the definition file it designates: the file itself,
// the file with a recognized extension appended, or the index file of a
// directory. The result is absolute.
func Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	if info, err := os.Stat(abs); err == nil {
		if !info.IsDir() {
			return abs, nil
		}
		for _, ext := range Extensions {
			index := filepath.Join(abs, IndexName+ext)
			if fileExists(index) {
				return index, nil
			}
		}
		return "", errs.New(errs.CodeNotFound, "directory %s has no %s file", path, IndexName+".yaml")
	}

	for _, ext := range Extensions {
		if fileExists(abs + ext) {
			return abs + ext, nil
		}
	}
	return "", errs.New(errs.CodeNotFound, "no definition at %s", path)
}

// IsDefinitionFile reports whether name has a recognized extension.
func IsDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
