// Package flows loads flow definitions from a directory of JSON or YAML files.
package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/trigger"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const flowFilePattern = "**/*.{json,yaml,yml}"

var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrInvalidFlow  = errors.New("invalid flow")
)

func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// FileRepository keeps the flows found under root, at any depth, in memory.
type FileRepository struct {
	root     string
	logger   *slog.Logger
	validate *validator.Validate

	mu      sync.RWMutex
	flows   map[string]*models.Flow
	order   []string
	invalid map[string]error
}

func NewFileRepository(logger *slog.Logger, root string) *FileRepository {
	return &FileRepository{
		root:     strings.TrimPrefix(root, "file://"),
		logger:   logger.With("module", "flows", "root", root),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		flows:    make(map[string]*models.Flow),
	}
}

// Load replaces the known flows with the contents of the directory. Files that
// fail to decode or validate are logged and skipped; a missing directory loads
// nothing.
func (r *FileRepository) Load(ctx context.Context) (int, error) {
	if _, err := os.Stat(r.root); errors.Is(err, os.ErrNotExist) {
		r.logger.WarnContext(ctx, "Flows directory does not exist")
		r.replace(nil, nil)

		return 0, nil
	}

	root := os.DirFS(r.root)

	files, err := doublestar.Glob(root, flowFilePattern)
	if err != nil {
		return 0, fmt.Errorf("failed to list flow files: %w", err)
	}

	slices.Sort(files)

	loaded := make([]*models.Flow, 0, len(files))
	seen := make(map[string]string, len(files))
	invalid := make(map[string]error)

	for _, file := range files {
		flow, err := r.decode(root, file)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to load flow", "file", file, "error", err)
			invalid[file] = err

			continue
		}

		if other, dup := seen[flow.ID]; dup {
			r.logger.ErrorContext(ctx, "Duplicate flow id", "file", file, "flow_id", flow.ID, "first_file", other)
			invalid[file] = fmt.Errorf("%w: duplicate id %s, first defined in %s", ErrInvalidFlow, flow.ID, other)

			continue
		}

		seen[flow.ID] = file
		loaded = append(loaded, flow)
	}

	r.replace(loaded, invalid)

	r.logger.InfoContext(ctx, "Flows loaded", "count", len(loaded), "files", len(files))

	return len(loaded), nil
}

func (r *FileRepository) decode(root fs.FS, file string) (*models.Flow, error) {
	raw, err := fs.ReadFile(root, file)
	if err != nil {
		return nil, err
	}

	if ext := path.Ext(file); ext == ".yaml" || ext == ".yml" {
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
		}
	}

	var flow models.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
	}

	if err := r.validate.Struct(&flow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
	}

	if _, err := trigger.Parse(flow.ID, flow.Trigger); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
	}

	for _, task := range flow.Tasks {
		task.FlowID = flow.ID
		if task.AccountID == "" {
			task.AccountID = flow.AccountID
		}
	}

	return &flow, nil
}

// yamlToJSON re-encodes a YAML document so flows share one decoding path.
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	return json.Marshal(doc)
}

func (r *FileRepository) replace(loaded []*models.Flow, invalid map[string]error) {
	flows := make(map[string]*models.Flow, len(loaded))
	order := make([]string, 0, len(loaded))

	for _, flow := range loaded {
		flows[flow.ID] = flow
		order = append(order, flow.ID)
	}

	r.mu.Lock()
	r.flows = flows
	r.order = order
	r.invalid = invalid
	r.mu.Unlock()
}

// Invalid returns the files skipped by the last Load with the reason each was rejected.
func (r *FileRepository) Invalid() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.invalid)
}

// Get returns the flow with the given id.
func (r *FileRepository) Get(_ context.Context, id string) (*models.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, ok := r.flows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}

	return flow, nil
}

// All returns every loaded flow in file name order.
func (r *FileRepository) All(_ context.Context) ([]*models.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.Flow, 0, len(r.order))
	for _, id := range r.order {
		all = append(all, r.flows[id])
	}

	return all, nil
}

// Repository is the read side of a flow store.
type Repository interface {
	Get(ctx context.Context, id string) (*models.Flow, error)
	All(ctx context.Context) ([]*models.Flow, error)
}

var _ Repository = (*FileRepository)(nil)
