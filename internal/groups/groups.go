// Package groups loads named host groups from a configuration resource.
//
// The text format is line oriented: a `[NAME]` header starts a group,
// member lines are `hostname` or `hostname : ATTR1 ATTR2`, and a line
// `@OTHER` splices in another group's members. Comments start with `#`.
// Files ending in .yml or .yaml use the equivalent YAML schema instead.
package groups

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codexnull/allssh/internal/errdefs"
	"github.com/codexnull/allssh/internal/logging"
)

// Member is one host entry in a group, with its attribute tags.
type Member struct {
	Host  string
	Attrs []string
}

// Group is a named, ordered collection of hosts. Members keeps spec
// order and may contain duplicates; Attrs maps hostname to its tags.
type Group struct {
	Name    string
	Members []Member
	Attrs   map[string][]string
}

// Hosts returns the ordered member hostnames.
func (g *Group) Hosts() []string {
	hosts := make([]string, len(g.Members))
	for i, m := range g.Members {
		hosts[i] = m.Host
	}
	return hosts
}

// rawEntry is an unresolved line from a group section: either a member
// or an @include of another group.
type rawEntry struct {
	include string
	member  Member
	line    int
}

// Store holds the loaded group map. It loads its source at most once per
// run; create one Store per run and pass it to the resolver.
type Store struct {
	path   string
	logger *logging.Logger

	loaded bool
	groups map[string]*Group
}

// NewStore creates a store backed by the given file path. An empty path
// or a missing file yields an empty store, which is not an error.
func NewStore(path string, logger *logging.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads and resolves the group file. It is idempotent; subsequent
// calls return the cached result.
func (s *Store) Load() error {
	if s.loaded {
		return nil
	}
	s.loaded = true
	s.groups = make(map[string]*Group)

	if s.path == "" {
		return nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &errdefs.ConfigError{File: s.path, Msg: err.Error()}
	}
	defer file.Close()

	var raw map[string][]rawEntry
	var order []string

	ext := strings.ToLower(filepath.Ext(s.path))
	if ext == ".yml" || ext == ".yaml" {
		raw, order, err = parseYAML(s.path, file)
	} else {
		raw, order, err = parseText(s.path, file)
	}
	if err != nil {
		return err
	}

	resolved := make(map[string]*Group)
	for _, name := range order {
		if err := resolveGroup(s.path, name, raw, resolved, make(map[string]bool)); err != nil {
			return err
		}
	}
	s.groups = resolved

	if s.logger != nil {
		s.logger.LogGroupLoad(s.path, len(s.groups))
	}
	return nil
}

// Lookup finds a group by name, case-insensitively, loading the store
// on first use.
func (s *Store) Lookup(name string) (*Group, bool, error) {
	if err := s.Load(); err != nil {
		return nil, false, err
	}
	g, ok := s.groups[strings.ToUpper(name)]
	return g, ok, nil
}

// Names returns the loaded group names.
func (s *Store) Names() ([]string, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.groups))
	for name := range s.groups {
		names = append(names, name)
	}
	return names, nil
}

// parseText reads the line-oriented group format into raw sections.
func parseText(path string, file *os.File) (map[string][]rawEntry, []string, error) {
	raw := make(map[string][]rawEntry)
	var order []string
	current := ""

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.ToUpper(strings.TrimSpace(line[1 : len(line)-1]))
			if name == "" {
				return nil, nil, &errdefs.ConfigError{File: path, Line: lineNum, Msg: "empty group name"}
			}
			if _, seen := raw[name]; !seen {
				order = append(order, name)
				raw[name] = nil
			}
			current = name
			continue
		}

		if current == "" {
			return nil, nil, &errdefs.ConfigError{File: path, Line: lineNum, Msg: fmt.Sprintf("member '%s' appears before any [GROUP] section", line)}
		}

		if strings.HasPrefix(line, "@") {
			ref := strings.ToUpper(strings.TrimSpace(line[1:]))
			if ref == "" {
				return nil, nil, &errdefs.ConfigError{File: path, Line: lineNum, Msg: "empty group reference"}
			}
			raw[current] = append(raw[current], rawEntry{include: ref, line: lineNum})
			continue
		}

		member, err := parseMemberLine(path, lineNum, line)
		if err != nil {
			return nil, nil, err
		}
		raw[current] = append(raw[current], rawEntry{member: member, line: lineNum})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, &errdefs.ConfigError{File: path, Msg: err.Error()}
	}

	return raw, order, nil
}

// parseMemberLine parses `hostname` or `hostname : ATTR ATTR`.
func parseMemberLine(path string, lineNum int, line string) (Member, error) {
	name, attrPart, hasAttrs := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t[]") {
		return Member{}, &errdefs.ConfigError{File: path, Line: lineNum, Msg: fmt.Sprintf("unrecognized line '%s'", line)}
	}

	member := Member{Host: strings.ToLower(name)}
	if hasAttrs {
		member.Attrs = strings.Fields(attrPart)
	}
	return member, nil
}

// yamlGroup mirrors one group in the YAML schema.
type yamlGroup struct {
	Hosts   []yaml.Node `yaml:"hosts"`
	Include []string    `yaml:"include"`
}

// parseYAML reads the YAML group schema into the same raw sections the
// text parser produces.
func parseYAML(path string, file *os.File) (map[string][]rawEntry, []string, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(file).Decode(&doc); err != nil {
		return nil, nil, &errdefs.ConfigError{File: path, Msg: err.Error()}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, nil, &errdefs.ConfigError{File: path, Msg: "top level must be a mapping of group names"}
	}

	raw := make(map[string][]rawEntry)
	var order []string

	root := doc.Content[0]
	for i := 0; i < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		name := strings.ToUpper(keyNode.Value)

		var g yamlGroup
		if err := valNode.Decode(&g); err != nil {
			return nil, nil, &errdefs.ConfigError{File: path, Line: valNode.Line, Msg: err.Error()}
		}

		if _, seen := raw[name]; !seen {
			order = append(order, name)
			raw[name] = nil
		}
		for _, hostNode := range g.Hosts {
			member, err := decodeYAMLMember(path, hostNode)
			if err != nil {
				return nil, nil, err
			}
			raw[name] = append(raw[name], rawEntry{member: member, line: hostNode.Line})
		}
		for _, ref := range g.Include {
			raw[name] = append(raw[name], rawEntry{include: strings.ToUpper(ref), line: valNode.Line})
		}
	}

	return raw, order, nil
}

// decodeYAMLMember accepts either a bare hostname or a one-entry mapping
// of hostname to attribute list.
func decodeYAMLMember(path string, node yaml.Node) (Member, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return Member{Host: strings.ToLower(node.Value)}, nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return Member{}, &errdefs.ConfigError{File: path, Line: node.Line, Msg: "host entry must map one hostname to its attributes"}
		}
		var attrs []string
		if err := node.Content[1].Decode(&attrs); err != nil {
			return Member{}, &errdefs.ConfigError{File: path, Line: node.Line, Msg: err.Error()}
		}
		return Member{Host: strings.ToLower(node.Content[0].Value), Attrs: attrs}, nil
	default:
		return Member{}, &errdefs.ConfigError{File: path, Line: node.Line, Msg: "host entry must be a hostname or a hostname: [attrs] mapping"}
	}
}

// resolveGroup expands @includes for one group, depth first. Includes
// splice in at their position; the included group's attribute entries
// merge in without overriding keys the including group already set.
func resolveGroup(path, name string, raw map[string][]rawEntry, resolved map[string]*Group, visiting map[string]bool) error {
	if _, done := resolved[name]; done {
		return nil
	}
	if visiting[name] {
		return &errdefs.ConfigError{File: path, Msg: fmt.Sprintf("group '%s' includes itself", name)}
	}
	visiting[name] = true
	defer delete(visiting, name)

	group := &Group{Name: name, Attrs: make(map[string][]string)}
	for _, entry := range raw[name] {
		if entry.include == "" {
			group.Members = append(group.Members, entry.member)
			if entry.member.Attrs != nil {
				group.Attrs[entry.member.Host] = entry.member.Attrs
			}
			continue
		}

		if _, defined := raw[entry.include]; !defined {
			return &errdefs.ConfigError{File: path, Line: entry.line, Msg: fmt.Sprintf("group '%s' references undefined group '%s'", name, entry.include)}
		}
		if err := resolveGroup(path, entry.include, raw, resolved, visiting); err != nil {
			return err
		}

		included := resolved[entry.include]
		group.Members = append(group.Members, included.Members...)
		for host, attrs := range included.Attrs {
			if _, exists := group.Attrs[host]; !exists {
				group.Attrs[host] = attrs
			}
		}
	}

	resolved[name] = group
	return nil
}
