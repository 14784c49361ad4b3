package bot

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed assets/training_data.json assets/personas.yaml
var defaultAssets embed.FS

// Pair is one trigger phrase and its canned response.
type Pair struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// trainingFile is the on-disk and embedded document shape.
type trainingFile struct {
	TrainingQuestions map[string][]Pair `json:"trainingQuestions"`
}

// Table holds the per-room canned-response pairs and persona prompts. The
// embedded defaults are always present; an optional on-disk file replaces the
// pair set and is hot-reloaded when it changes.
type Table struct {
	logger *slog.Logger

	fs   afero.Fs
	path string

	mu       sync.RWMutex
	rooms    map[string][]Pair
	personas map[string]string
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithFs overrides the filesystem used to read the training data file.
func WithFs(fs afero.Fs) TableOption {
	return func(t *Table) {
		t.fs = fs
	}
}

// NewTable loads the embedded defaults and, when path is non-empty, overlays
// the pairs from the file at path.
func NewTable(path string, opts ...TableOption) (*Table, error) {
	t := &Table{
		logger: slog.Default().With("service", "bot_table"),
		fs:     afero.NewOsFs(),
		path:   path,
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := t.loadDefaults(); err != nil {
		return nil, err
	}
	if path != "" {
		if err := t.Reload(); err != nil {
			return nil, fmt.Errorf("loading training data from %s: %w", path, err)
		}
	}
	return t, nil
}

func (t *Table) loadDefaults() error {
	raw, err := defaultAssets.ReadFile("assets/training_data.json")
	if err != nil {
		return fmt.Errorf("reading embedded training data: %w", err)
	}
	var doc trainingFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing embedded training data: %w", err)
	}

	rawPersonas, err := defaultAssets.ReadFile("assets/personas.yaml")
	if err != nil {
		return fmt.Errorf("reading embedded personas: %w", err)
	}
	personas := make(map[string]string)
	if err := yaml.Unmarshal(rawPersonas, &personas); err != nil {
		return fmt.Errorf("parsing embedded personas: %w", err)
	}

	t.mu.Lock()
	t.rooms = doc.TrainingQuestions
	t.personas = personas
	t.mu.Unlock()
	return nil
}

// Reload re-reads the training data file and swaps the pair set atomically.
// The embedded personas are unaffected.
func (t *Table) Reload() error {
	if t.path == "" {
		return nil
	}

	raw, err := afero.ReadFile(t.fs, t.path)
	if err != nil {
		return fmt.Errorf("reading training data: %w", err)
	}
	var doc trainingFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing training data: %w", err)
	}
	if len(doc.TrainingQuestions) == 0 {
		return fmt.Errorf("training data has no rooms")
	}

	t.mu.Lock()
	t.rooms = doc.TrainingQuestions
	t.mu.Unlock()

	t.logger.Info("Training data reloaded", "path", t.path, "rooms", len(doc.TrainingQuestions))
	return nil
}

// Watch hot-reloads the training data file whenever it changes on disk.
// Blocks until ctx is cancelled. A failed reload keeps the previous table.
func (t *Table) Watch(ctx context.Context) error {
	if t.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(t.path); err != nil {
		return fmt.Errorf("watching %s: %w", t.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := t.Reload(); err != nil {
				t.logger.Error("Failed to reload training data, keeping previous table",
					"path", t.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Error("Training data watcher error", "error", err)
		}
	}
}

// Pairs returns the canned pairs for a room. Room names are case-sensitive.
func (t *Table) Pairs(room string) []Pair {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rooms[room]
}

// Rooms returns the rooms that have canned pairs, in no particular order.
func (t *Table) Rooms() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.rooms))
	for name := range t.rooms {
		names = append(names, name)
	}
	return names
}

// Persona returns the room's persona prompt, or the General persona when the
// room has none.
func (t *Table) Persona(room string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.personas[room]; ok {
		return p
	}
	return t.personas["General"]
}

// RandomResponse picks a random canned response for the room, used as the
// fallback when every other reply path has failed. Rooms with no pairs fall
// back to a fixed prompt so the caller always gets text.
func (t *Table) RandomResponse(room string) string {
	pairs := t.Pairs(room)
	if len(pairs) == 0 {
		return "Let's keep chatting! You can say hi, tell me your name, ask for a fact, or type 'mood: happy'."
	}
	return pairs[rand.Intn(len(pairs))].Response
}
