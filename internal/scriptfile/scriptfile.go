// Package scriptfile implements the optional include front matter a saved
// .fsh script may declare: a leading YAML block naming variable defaults to
// seed before the script body runs. Everything past those defaults belongs
// to the scripting engine (internal/script, internal/executor); this
// package only splits the document and seeds the variable table.
package scriptfile

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dr-natetorious/fleetshell/internal/variables"
)

var frontMatterPattern = regexp.MustCompile(`(?s)\A---\r?\n(.*?\r?\n)---\r?\n?`)

// Include is the front matter's declared shape: a map of variable names to
// their default values.
type Include struct {
	Variables map[string]any `yaml:"variables"`
}

// File is a parsed script: its optional Include plus the body text handed
// on to script.ParseScript.
type File struct {
	Include Include
	Body    string
}

// Parse splits data into an optional front-matter Include and the
// remaining script body. Content with no leading "---" block has no
// front matter and its Body is exactly the input text.
func Parse(data []byte) (*File, error) {
	text := string(data)
	m := frontMatterPattern.FindStringSubmatch(text)
	if m == nil {
		return &File{Body: text}, nil
	}

	var inc Include
	if err := yaml.Unmarshal([]byte(m[1]), &inc); err != nil {
		return nil, fmt.Errorf("parse script front matter: %w", err)
	}
	return &File{Include: inc, Body: text[len(m[0]):]}, nil
}

// Load reads and parses the script at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return Parse(data)
}

// Seed binds every front-matter variable default into manager, skipping
// names already bound — a script's own defaults never clobber a value the
// caller already set (an interactive `set` before `run`, or a prior
// include).
func (f *File) Seed(manager *variables.Manager) {
	for name, value := range f.Include.Variables {
		if _, bound := manager.Get(name); !bound {
			manager.SetValue(name, value)
		}
	}
}
