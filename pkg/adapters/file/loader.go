// Package file loads flow documents from a directory into a memory
// repository.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/convoflow/internal/compiler"
	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/internal/validator"
	"github.com/aretw0/convoflow/pkg/adapters/memory"
)

// ManifestName is the optional file mapping bots to their main flow.
//
//	bots:
//	  support: greeting
const ManifestName = "bots.yaml"

// ErrInvalidFlow is returned in strict mode for flows failing validation.
var ErrInvalidFlow = errors.New("invalid flow")

type manifest struct {
	Bots map[string]string `yaml:"bots"`
}

// Loader reads *.yaml, *.yml and *.json flow documents below a directory.
// Files and directories starting with "." or "_" are skipped.
type Loader struct {
	dir    string
	strict bool
	parser *compiler.Parser
	logger *slog.Logger
}

type Option func(*Loader)

// WithStrict rejects the whole directory when any flow is invalid.
// Otherwise invalid flows are loaded and their errors logged.
func WithStrict(strict bool) Option {
	return func(l *Loader) { l.strict = strict }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

func NewLoader(dir string, opts ...Option) *Loader {
	l := &Loader{
		dir:    dir,
		parser: compiler.NewParser(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load parses every flow document and applies the bot manifest.
func (l *Loader) Load() (*memory.Flows, error) {
	paths, err := l.documents()
	if err != nil {
		return nil, err
	}

	flows := memory.NewFlows()
	var invalid []error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		fv, err := l.parser.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if fv.FlowID == "" {
			fv.FlowID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			fv.ID = fmt.Sprintf("%s@%d", fv.FlowID, fv.VersionNumber)
		}

		if res := validator.Validate(fv); !res.IsValid {
			l.logger.Warn("flow has validation errors", "path", path, "count", len(res.Errors))
			invalid = append(invalid, fmt.Errorf("%s: %w", path, res.Error()))
		}
		if err := flows.Add(fv); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		l.logger.Debug("flow loaded", "path", path, logging.FlowVersionID(fv.ID))
	}
	if l.strict && len(invalid) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, errors.Join(invalid...))
	}

	if err := l.applyManifest(flows); err != nil {
		return nil, err
	}
	return flows, nil
}

func (l *Loader) documents() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != l.dir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || name == ManifestName {
			return nil
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".yaml", ".yml", ".json":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", l.dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (l *Loader) applyManifest(flows *memory.Flows) error {
	data, err := os.ReadFile(filepath.Join(l.dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	known := make(map[string]bool)
	for _, id := range flows.FlowIDs() {
		known[id] = true
	}
	for bot, flowID := range m.Bots {
		if !known[flowID] {
			return fmt.Errorf("manifest: bot %s points to unknown flow %s", bot, flowID)
		}
		flows.SetMainFlow(bot, flowID)
	}
	return nil
}
