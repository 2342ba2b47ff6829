// Package manifest handles covenant.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"

	"github.com/chazu/covenant/vm"
)

// schema constrains a decoded covenant.toml before it is trusted. Values
// are optional; anything present must be in range.
const schema = `
engine?: {
	"max-shift"?:             int & >0 & <=2048
	"max-stack-size"?:        int & >0
	"max-reference-count"?:   int & >0
	"max-item-size"?:         int & >0
	"max-comparable-size"?:   int & >0
	"max-invocation-depth"?:  int & >0
	"max-try-nesting-depth"?: int & >0
	"step-budget"?:           int & >=0
}
store?: {
	path?: string
}
log?: {
	verbosity?: int & >=-1 & <=4
}
`

// Manifest represents a covenant.toml configuration.
type Manifest struct {
	Engine EngineConfig `toml:"engine"`
	Store  StoreConfig  `toml:"store"`
	Log    LogConfig    `toml:"log"`

	// Dir is the directory containing the covenant.toml file (set at
	// load time).
	Dir string `toml:"-"`
}

// EngineConfig overrides the engine limits. Zero values fall back to the
// defaults.
type EngineConfig struct {
	MaxShift            int `toml:"max-shift"`
	MaxStackSize        int `toml:"max-stack-size"`
	MaxReferenceCount   int `toml:"max-reference-count"`
	MaxItemSize         int `toml:"max-item-size"`
	MaxComparableSize   int `toml:"max-comparable-size"`
	MaxInvocationDepth  int `toml:"max-invocation-depth"`
	MaxTryNestingDepth  int `toml:"max-try-nesting-depth"`
	StepBudget          int `toml:"step-budget"`
}

// StoreConfig configures the script store. An empty path selects the
// in-memory store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Load parses and validates a covenant.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "covenant.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return &m, nil
}

// validate unifies the decoded document with the schema.
func validate(raw map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	ctx := cuecontext.New()
	constraint := ctx.CompileString(schema)
	if err := constraint.Err(); err != nil {
		return fmt.Errorf("internal schema error: %w", err)
	}
	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("cannot encode configuration: %w", err)
	}
	unified := constraint.Unify(doc)
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Limits returns the engine limits with manifest overrides applied.
func (m *Manifest) Limits() vm.Limits {
	l := vm.DefaultLimits()
	if m.Engine.MaxShift > 0 {
		l.MaxShift = m.Engine.MaxShift
	}
	if m.Engine.MaxStackSize > 0 {
		l.MaxStackSize = m.Engine.MaxStackSize
	}
	if m.Engine.MaxReferenceCount > 0 {
		l.MaxReferenceCount = m.Engine.MaxReferenceCount
	}
	if m.Engine.MaxItemSize > 0 {
		l.MaxItemSize = m.Engine.MaxItemSize
	}
	if m.Engine.MaxComparableSize > 0 {
		l.MaxComparableSize = m.Engine.MaxComparableSize
	}
	if m.Engine.MaxInvocationDepth > 0 {
		l.MaxInvocationStackSize = m.Engine.MaxInvocationDepth
	}
	if m.Engine.MaxTryNestingDepth > 0 {
		l.MaxTryNestingDepth = m.Engine.MaxTryNestingDepth
	}
	return l
}

// FindAndLoad walks up from startDir to find a covenant.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, "covenant.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}
