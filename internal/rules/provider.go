package rules

import (
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider hands out the active RuleSet and supports atomic replacement.
// Gate runs read the set once at start and keep that snapshot; a reload
// never mutates a set already handed out.
type Provider struct {
	current atomic.Pointer[RuleSet]
	path    string
}

// NewProvider creates a Provider serving rs. The path, when non-empty, is
// the rule file Reload re-reads.
func NewProvider(rs *RuleSet, path string) *Provider {
	p := &Provider{path: path}
	p.current.Store(rs)
	return p
}

// Current returns the active RuleSet.
func (p *Provider) Current() *RuleSet {
	return p.current.Load()
}

// Swap replaces the active RuleSet.
func (p *Provider) Swap(rs *RuleSet) {
	p.current.Store(rs)
}

// Reload re-reads the rule file and swaps in the compiled result. On any
// error the active set is left untouched.
func (p *Provider) Reload() error {
	if p.path == "" {
		return eris.New("rules: no rule file configured")
	}
	rs, err := Load(p.path)
	if err != nil {
		return err
	}
	p.Swap(rs)
	zap.L().Info("rules: reloaded",
		zap.String("path", p.path),
		zap.Int("allowed_cities", len(rs.AllowedCities)),
		zap.Int("whitelist", len(rs.CategoryWhitelist)),
		zap.Int("blacklist", len(rs.CategoryBlacklist)),
	)
	return nil
}
