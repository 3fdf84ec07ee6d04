package querysql

import (
	"fmt"
	"log/slog"

	"github.com/creasty/defaults"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
)

// Config holds the translator settings that can come from a config file.
//
// Zero values are replaced by the defaults in the struct tags when the
// config is passed through DefaultConfig or WithConfig.
type Config struct {
	// MaxFetchDepth bounds how deep non-explicit join fetches are planned.
	// Deeper fetches are still planned but loaded by subsequent selects.
	// A negative value means unlimited; zero takes the default, so config
	// files and the CLI spell unlimited as -1.
	MaxFetchDepth int `default:"3" yaml:"max_fetch_depth" mapstructure:"max_fetch_depth"`

	// CteNameRetries bounds the suffixes tried when a CTE name collides with
	// a visible one.
	CteNameRetries int `default:"16" yaml:"cte_name_retries" mapstructure:"cte_name_retries"`

	// Dialect names the capability preset ("sqlite" or "postgresql").
	Dialect string `default:"sqlite" yaml:"dialect" mapstructure:"dialect"`

	// FetchProfiles lists the catalog fetch profiles enabled by default.
	FetchProfiles []string `yaml:"fetch_profiles" mapstructure:"fetch_profiles"`
}

// DefaultConfig returns the configuration with every default applied.
func DefaultConfig() Config {
	var c Config
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Config) {
	if err := defaults.Set(c); err != nil {
		// The tags above are static; a failure here is a programming error.
		panic(fmt.Sprintf("querysql: invalid config defaults: %v", err))
	}
}

// IDGenerator produces translation ids for log correlation.
// Implemented by UUIDv7Generator (production) and the testutil generators.
type IDGenerator interface {
	NewID() string
}

// Option configures a Translator.
type Option func(*Translator)

// WithConfig applies a whole Config. Zero fields take their defaults.
// A dialect name that does not resolve keeps the current dialect.
func WithConfig(c Config) Option {
	return func(tr *Translator) {
		applyDefaults(&c)
		tr.cfg = c
		if d, err := mm.DialectByName(c.Dialect); err == nil {
			tr.dialect = d
		}
	}
}

// WithMaxFetchDepth sets the maximum depth of planned join fetches.
//
// Default: 3
// Zero or a negative depth plans fetches without a depth limit.
func WithMaxFetchDepth(depth int) Option {
	return func(tr *Translator) {
		tr.cfg.MaxFetchDepth = depth
	}
}

// WithEntityGraph requests an entity graph for the result. The graph's
// mode decides how attributes outside it are loaded.
func WithEntityGraph(g *queryir.EntityGraph) Option {
	return func(tr *Translator) {
		tr.graph = g
	}
}

// WithFetchProfiles enables catalog fetch profiles by name.
func WithFetchProfiles(names ...string) Option {
	return func(tr *Translator) {
		tr.cfg.FetchProfiles = append(tr.cfg.FetchProfiles, names...)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(tr *Translator) {
		tr.logger = l
	}
}

// WithBindRegistry makes translations report parameter types and
// placeholders to r instead of a fresh in-memory registry.
func WithBindRegistry(r BindRegistry) Option {
	return func(tr *Translator) {
		tr.bindings = r
	}
}

// WithDialect sets the capability object consulted during translation.
func WithDialect(d mm.Dialect) Option {
	return func(tr *Translator) {
		tr.dialect = d
		tr.cfg.Dialect = d.Name()
	}
}

// WithCteNameRetries bounds CTE name disambiguation.
func WithCteNameRetries(n int) Option {
	return func(tr *Translator) {
		tr.cfg.CteNameRetries = n
	}
}

// WithIDGenerator sets the translation id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(tr *Translator) {
		tr.ids = g
	}
}
