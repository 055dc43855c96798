package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openmend/openmend/pkg/engine"
	"github.com/openmend/openmend/pkg/telemetry"
)

// DefaultEnv is the environment directory used when a resource carries none.
const DefaultEnv = "default"

// Document is the on-disk form of one resource snapshot.
type Document struct {
	Type    string      `yaml:"type"`
	Name    string      `yaml:"name"`
	Group   string      `yaml:"group,omitempty"`
	Env     string      `yaml:"env"`
	SavedAt time.Time   `yaml:"saved_at"`
	State   interface{} `yaml:"state"`
}

// Store persists resource snapshots as YAML files under
// <root>/output/<env>/<type>/<name>.yaml.
type Store struct {
	root   string
	logger *telemetry.Logger
}

// NewStore creates a snapshot store rooted at the workspace directory.
func NewStore(root string) *Store {
	return &Store{
		root:   root,
		logger: telemetry.NopLogger(),
	}
}

// WithLogger attaches a logger and returns the store.
func (s *Store) WithLogger(logger *telemetry.Logger) *Store {
	s.logger = logger.NewComponentLogger("snapshot-store")
	return s
}

// Path returns the snapshot file location for a resource.
func (s *Store) Path(r *engine.Resource) string {
	env := r.Env
	if env == "" {
		env = DefaultEnv
	}
	return filepath.Join(s.root, "output", env, r.Type, r.Name+".yaml")
}

// Save writes the resource's snapshot, replacing any previous one. The
// write goes through a temp file so readers never see a partial snapshot.
func (s *Store) Save(r *engine.Resource, state interface{}) error {
	if r == nil {
		return engine.NewPermanentError("resource must not be nil", nil).
			WithCode(engine.ErrCodeValidation)
	}
	if r.Type == "" || r.Name == "" {
		return engine.NewPermanentError("resource must have type and name", nil).
			WithCode(engine.ErrCodeValidation)
	}

	doc := Document{
		Type:    r.Type,
		Name:    r.Name,
		Group:   r.Group,
		Env:     r.Env,
		SavedAt: time.Now().UTC(),
		State:   state,
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return engine.NewPermanentError("marshaling snapshot", err).
			WithResource(r.String())
	}

	path := s.Path(r)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return engine.NewTransientError("creating snapshot directory", err).
			WithResource(r.String())
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+r.Name+"-*.yaml")
	if err != nil {
		return engine.NewTransientError("creating snapshot temp file", err).
			WithResource(r.String())
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return engine.NewTransientError("writing snapshot", err).
			WithResource(r.String())
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return engine.NewTransientError("closing snapshot temp file", err).
			WithResource(r.String())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return engine.NewTransientError("replacing snapshot", err).
			WithResource(r.String())
	}

	s.logger.WithResource(r.Type, r.Name).WithField("path", path).Debug("snapshot saved")
	return nil
}

// Load reads the snapshot of a resource. A missing snapshot is a
// permanent NOT_FOUND error.
func (s *Store) Load(r *engine.Resource) (*Document, error) {
	path := s.Path(r)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, engine.NewPermanentError(fmt.Sprintf("no snapshot for %s", r), err).
				WithCode(engine.ErrCodeNotFound).
				WithResource(r.String())
		}
		return nil, engine.NewTransientError("reading snapshot", err).
			WithResource(r.String())
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, engine.NewPermanentError("parsing snapshot", err).
			WithResource(r.String())
	}

	return &doc, nil
}

// Delete removes a resource's snapshot. Deleting a snapshot that does
// not exist is a no-op.
func (s *Store) Delete(r *engine.Resource) error {
	err := os.Remove(s.Path(r))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return engine.NewTransientError("deleting snapshot", err).
			WithResource(r.String())
	}
	return nil
}

// List returns the resource names with a snapshot for the given env and
// type, sorted alphabetically. A missing directory means no snapshots.
func (s *Store) List(env, resourceType string) ([]string, error) {
	if env == "" {
		env = DefaultEnv
	}

	dir := filepath.Join(s.root, "output", env, resourceType)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, engine.NewTransientError("listing snapshots", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}
