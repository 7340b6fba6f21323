// Package registry provides the catalog of database instances that requests may target.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dukex/querygate/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInstanceNotFound indicates no descriptor matches the requested name and kind.
	ErrInstanceNotFound = errors.New("instance not found in configuration")

	// ErrInvalidConfiguration indicates the registry source failed validation.
	ErrInvalidConfiguration = errors.New("invalid instance configuration")
)

// InstanceNotFoundError carries the lookup that missed.
type InstanceNotFoundError struct {
	Name string
	Kind models.DatabaseKind
}

func (e *InstanceNotFoundError) Error() string {
	return fmt.Sprintf("Instance %s (%s) not found in configuration", e.Name, e.Kind)
}

func (e *InstanceNotFoundError) Is(target error) bool {
	return target == ErrInstanceNotFound
}

type key struct {
	name string
	kind models.DatabaseKind
}

// Registry is an immutable, read-only catalog of connection descriptors.
// It is safe for concurrent use once constructed.
type Registry struct {
	logger    *slog.Logger
	instances map[key]models.ConnectionDescriptor
	ordered   []models.ConnectionDescriptor
}

// File is the on-disk shape of the registry source.
type File struct {
	Instances []models.ConnectionDescriptor `yaml:"instances"`
}

// NewRegistry builds a registry from descriptors, rejecting duplicates.
func NewRegistry(logger *slog.Logger, descriptors []models.ConnectionDescriptor) (*Registry, error) {
	r := &Registry{
		logger:    logger,
		instances: make(map[key]models.ConnectionDescriptor, len(descriptors)),
	}

	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: instance name is required", ErrInvalidConfiguration)
		}

		if !d.Kind.Valid() {
			return nil, fmt.Errorf("%w: instance %s has unsupported kind %q", ErrInvalidConfiguration, d.Name, d.Kind)
		}

		if d.Host == "" && d.ConnectionString == "" {
			return nil, fmt.Errorf("%w: instance %s needs a host or a connection string", ErrInvalidConfiguration, d.Name)
		}

		k := key{name: d.Name, kind: d.Kind}
		if _, exists := r.instances[k]; exists {
			return nil, fmt.Errorf("%w: duplicate instance %s (%s)", ErrInvalidConfiguration, d.Name, d.Kind)
		}

		r.instances[k] = d
		r.ordered = append(r.ordered, d)
	}

	sort.SliceStable(r.ordered, func(i, j int) bool {
		if r.ordered[i].Kind != r.ordered[j].Kind {
			return r.ordered[i].Kind < r.ordered[j].Kind
		}

		return r.ordered[i].Name < r.ordered[j].Name
	})

	return r, nil
}

// LoadFile reads, validates and loads a YAML registry file.
func LoadFile(logger *slog.Logger, path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instances file: %w", err)
	}

	return Load(logger, data)
}

// Load validates a YAML document against the registry schema and builds a registry.
func Load(logger *slog.Logger, data []byte) (*Registry, error) {
	var document any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	if err := Validate(document); err != nil {
		return nil, err
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	registry, err := NewRegistry(logger, file.Instances)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded instance registry", "instances", len(file.Instances))

	return registry, nil
}

// Validate checks a decoded registry document against the embedded JSON schema.
func Validate(document any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(instancesSchema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}

		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, details)
	}

	return nil
}

// Resolve returns the descriptor for an instance name and kind.
func (r *Registry) Resolve(name string, kind models.DatabaseKind) (models.ConnectionDescriptor, error) {
	d, ok := r.instances[key{name: name, kind: kind}]
	if !ok {
		return models.ConnectionDescriptor{}, &InstanceNotFoundError{Name: name, Kind: kind}
	}

	return d, nil
}

// List returns all descriptors ordered by kind and name.
func (r *Registry) List() []models.ConnectionDescriptor {
	out := make([]models.ConnectionDescriptor, len(r.ordered))
	copy(out, r.ordered)

	return out
}

// HealthCheck reports whether any instance is configured.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.instances) == 0 {
		return "No database instances configured", false
	}

	return fmt.Sprintf("%d database instances configured", len(r.instances)), true
}
