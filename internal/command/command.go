// Package command builds the per-host command text and the argument
// vector handed to the external remote-execution client.
package command

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultPlaceholder is the literal token replaced with the target
// hostname in the command text.
const DefaultPlaceholder = "{}"

// Builder constructs remote-client argument vectors. Arguments are
// discrete elements end to end; no shell ever interpolates them.
type Builder struct {
	Client      string // remote-execution client binary, defaults to ssh
	User        string // optional alternate remote user
	Insecure    bool   // relax host key checking
	Placeholder string // hostname placeholder token in the command text
}

// NewBuilder creates a builder invoking the given client binary.
func NewBuilder(client string) *Builder {
	if client == "" {
		client = "ssh"
	}
	return &Builder{Client: client, Placeholder: DefaultPlaceholder}
}

// Argv builds the full argument vector for one host: the client binary,
// its batch-mode flags, the optional host key relaxation, the
// (optionally user-prefixed) target, and the command text last.
func (b *Builder) Argv(host, commandText string) []string {
	argv := []string{
		b.Client,
		"-o", "BatchMode=yes",
	}
	if b.Insecure {
		argv = append(argv, "-o", "StrictHostKeyChecking=no")
	}

	target := host
	if b.User != "" {
		target = b.User + "@" + host
	}

	return append(argv, target, commandText)
}

// Context is the data available to command templates.
type Context struct {
	Host       string
	Seq        int
	Occurrence int
}

// IsTemplate reports whether the command text uses template syntax
// rather than the literal placeholder.
func IsTemplate(commandText string) bool {
	return strings.Contains(commandText, "{{")
}

// Render produces the per-host command text. Template commands execute
// as Go templates over Context; otherwise every literal placeholder
// token is substituted with the hostname.
func (b *Builder) Render(commandText string, ctx Context) (string, error) {
	if IsTemplate(commandText) {
		tmpl, err := template.New("command").Funcs(templateFuncs()).Parse(commandText)
		if err != nil {
			return "", fmt.Errorf("failed to parse command template: %w", err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, ctx); err != nil {
			return "", fmt.Errorf("failed to execute command template: %w", err)
		}
		return buf.String(), nil
	}

	placeholder := b.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	return strings.ReplaceAll(commandText, placeholder, ctx.Host), nil
}

// templateFuncs returns the function map available to command templates.
func templateFuncs() template.FuncMap {
	caser := cases.Title(language.English)
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": caser.String,
	}
}
