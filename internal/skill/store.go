package skill

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const skillFileName = "SKILL.md"

// FileStore reads skills from <dir>/<name>/SKILL.md. Each file carries a
// YAML frontmatter block followed by markdown sections:
//
//	# Role           -> system prompt
//	# Instructions   -> user prompt template
//	# Output Format  -> appended to the user prompt (optional)
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

type frontmatter struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Version     string  `yaml:"version"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

func (s *FileStore) FindByName(name string) (*Skill, error) {
	sk, err := s.load(filepath.Join(s.dir, name, skillFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return sk, err
}

func (s *FileStore) FindAll() ([]*Skill, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	var skills []*Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sk, err := s.load(filepath.Join(s.dir, entry.Name(), skillFileName))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		skills = append(skills, sk)
	}
	return skills, nil
}

func (s *FileStore) load(path string) (*Skill, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fm, body, err := splitFrontmatter(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	sections := splitSections(body)
	system, ok := sections["Role"]
	if !ok {
		return nil, fmt.Errorf("%s: missing %q section", path, "# Role")
	}
	user, ok := sections["Instructions"]
	if !ok {
		return nil, fmt.Errorf("%s: missing %q section", path, "# Instructions")
	}
	if output, ok := sections["Output Format"]; ok && output != "" {
		user += "\n\n## Output Format\n" + output
	}

	return &Skill{
		Name:         fm.Name,
		Description:  fm.Description,
		Version:      fm.Version,
		Model:        fm.Model,
		Temperature:  fm.Temperature,
		SystemPrompt: system,
		UserPrompt:   user,
	}, nil
}

func splitFrontmatter(content string) (frontmatter, string, error) {
	var fm frontmatter

	rest, found := strings.CutPrefix(content, "---\n")
	if !found {
		return fm, "", errors.New("missing frontmatter")
	}
	block, body, found := strings.Cut(rest, "\n---\n")
	if !found {
		return fm, "", errors.New("unterminated frontmatter")
	}
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return fm, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return fm, body, nil
}

// splitSections collects body text grouped by top-level "# " headings.
func splitSections(body string) map[string]string {
	sections := make(map[string]string)
	var current string
	var buf []string

	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(body, "\n") {
		if heading, ok := strings.CutPrefix(line, "# "); ok {
			flush()
			current = strings.TrimSpace(heading)
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return sections
}
