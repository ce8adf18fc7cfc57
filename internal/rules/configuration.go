package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfiguration wraps every fatal problem found in a rule document.
var ErrInvalidConfiguration = errors.New("invalid object rule configuration")

var validate = validator.New()

// ObjectProperties is one consolidation rule: the target entity and the identifiers merged into it.
type ObjectProperties struct {
	Properties  json.RawMessage `json:"properties"`
	GroupedFrom []string        `json:"grouped_from"`
}

// Configuration is the parsed rule document. A nil list means the category is absent.
type Configuration struct {
	Networks        []ObjectProperties `json:"networks"`
	CommercialModes []ObjectProperties `json:"commercial_modes"`
	PhysicalModes   []ObjectProperties `json:"physical_modes"`
}

// Empty reports whether no category is configured.
func (c *Configuration) Empty() bool {
	return c.Networks == nil && c.CommercialModes == nil && c.PhysicalModes == nil
}

// LoadConfiguration decodes a rule document.
func LoadConfiguration(r io.Reader) (*Configuration, error) {
	var cfg Configuration
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return &cfg, nil
}

// ReadConfiguration opens and decodes the rule document at path.
func ReadConfiguration(path string) (*Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open object rules: %w", err)
	}
	defer f.Close()
	return LoadConfiguration(f)
}

// targetID extracts the identifier of the rule target under key.
func (p *ObjectProperties) targetID(key string) (string, error) {
	var props map[string]json.RawMessage
	if err := json.Unmarshal(p.Properties, &props); err != nil || props == nil {
		return "", fmt.Errorf("%w: properties must be an object", ErrInvalidConfiguration)
	}
	raw, ok := props[key]
	if !ok {
		return "", fmt.Errorf("%w: key %q is required", ErrInvalidConfiguration, key)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" {
		return "", fmt.Errorf("%w: value for %q must be filled in", ErrInvalidConfiguration, key)
	}
	return id, nil
}

// contains reports whether id is one of the grouped identifiers.
func (p *ObjectProperties) contains(id string) bool {
	for _, g := range p.GroupedFrom {
		if g == id {
			return true
		}
	}
	return false
}

// decodeTarget builds the target entity from the rule properties.
func decodeTarget[T any](p *ObjectProperties) (T, error) {
	var obj T
	if err := json.Unmarshal(p.Properties, &obj); err != nil {
		return obj, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if err := validate.Struct(obj); err != nil {
		return obj, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return obj, nil
}
