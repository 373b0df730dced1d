// Package skills implements the hot-swappable skill registry: a
// directory of markdown files with a YAML-ish frontmatter block
// (name/description), loaded at startup and kept current by a
// filesystem watcher. The markdown body past the frontmatter is opaque
// here — only the frontmatter contract the registry exposes to the
// orchestration loop is this package's concern.
package skills

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// Skill is one loaded skill file's frontmatter plus its source path.
type Skill struct {
	Name        string
	Description string
	Path        string
}

// Loader scans a workspace-local and a global skills directory for
// `*.md` files and parses their frontmatter.
type Loader struct {
	workspaceDir string
	globalDir    string

	mu     sync.RWMutex
	skills map[string]Skill
}

// NewLoader builds a Loader over the given directories. Either may be
// empty, in which case it is skipped.
func NewLoader(workspaceDir, globalDir string) *Loader {
	return &Loader{
		workspaceDir: workspaceDir,
		globalDir:    globalDir,
		skills:       make(map[string]Skill),
	}
}

// Reload rescans both directories, replacing the loaded skill set.
// Workspace skills shadow global skills of the same name.
func (l *Loader) Reload() error {
	next := make(map[string]Skill)
	if l.globalDir != "" {
		if err := scanInto(l.globalDir, next); err != nil && !os.IsNotExist(err) {
			return corekind.Wrap(corekind.Io, "skills.Reload", err)
		}
	}
	if l.workspaceDir != "" {
		if err := scanInto(l.workspaceDir, next); err != nil && !os.IsNotExist(err) {
			return corekind.Wrap(corekind.Io, "skills.Reload", err)
		}
	}
	l.mu.Lock()
	l.skills = next
	l.mu.Unlock()
	return nil
}

func scanInto(dir string, out map[string]Skill) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		sk, err := parseSkillFile(path)
		if err != nil {
			continue
		}
		out[sk.Name] = sk
	}
	return nil
}

// parseSkillFile reads only the frontmatter block (delimited by `---`
// lines at the top of the file) and extracts name/description.
func parseSkillFile(path string) (Skill, error) {
	f, err := os.Open(path)
	if err != nil {
		return Skill{}, err
	}
	defer f.Close()

	sk := Skill{
		Name: strings.TrimSuffix(filepath.Base(path), ".md"),
		Path: path,
	}

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "---" {
		return sk, nil
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `"'`))
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			if value != "" {
				sk.Name = value
			}
		case "description":
			sk.Description = value
		}
	}
	return sk, nil
}

// ListSkills returns every currently loaded skill.
func (l *Loader) ListSkills() []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Skill, 0, len(l.skills))
	for _, sk := range l.skills {
		out = append(out, sk)
	}
	return out
}

// Get looks up a skill by name.
func (l *Loader) Get(name string) (Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sk, ok := l.skills[name]
	return sk, ok
}

// Watcher watches the loader's directories and triggers a Reload on
// any create/write/remove/rename event.
type Watcher struct {
	loader *Loader
	fsw    *fsnotify.Watcher
	done   chan struct{}
}

// NewWatcher builds a Watcher over loader's directories. Returns an
// error if the fsnotify watcher cannot be created; a directory that
// cannot be created or added to the watch is skipped without error.
func NewWatcher(loader *Loader) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "skills.NewWatcher", err)
	}
	for _, dir := range []string{loader.workspaceDir, loader.globalDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		_ = fsw.Add(dir)
	}
	return &Watcher{loader: loader, fsw: fsw, done: make(chan struct{})}, nil
}

// Start runs the watch loop in a background goroutine until ctx is
// done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.loader.Reload(); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".md") {
					continue
				}
				_ = w.loader.Reload()
			case _, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// Stop closes the underlying filesystem watch.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}
