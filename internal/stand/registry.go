package stand

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/queryfan/queryfan/internal/config"
	"github.com/queryfan/queryfan/internal/log"
)

// Stand is one named, configured backend connection. The adapter instance is
// shared by whichever worker dequeues a task addressed to this stand; mu
// serializes those uses so two workers never drive one connection at once.
type Stand struct {
	Name    string
	Vendor  string
	Syntax  Syntax
	adapter Adapter

	mu sync.Mutex
}

// Execute runs one query against the stand under the per-stand lock:
// connect, then fetch. Both connection and query failures are returned as
// adapter-level errors for the caller to record.
func (s *Stand) Execute(ctx context.Context, query string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.adapter.Connect(ctx); err != nil {
		return nil, err
	}
	return s.adapter.FetchMany(ctx, query, limit)
}

// Close releases the stand's adapter.
func (s *Stand) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter.Close()
}

// Registry maps user-facing stand names to adapters. Built once at startup.
type Registry struct {
	stands map[string]*Stand
}

// BuildRegistry constructs adapters for every configured stand. A malformed
// entry is logged with its reason and skipped; it never aborts construction
// of the other stands.
func BuildRegistry(confs map[string]config.StandConf) *Registry {
	logger := log.WithComponent("stand")
	r := &Registry{stands: make(map[string]*Stand, len(confs))}

	for name, conf := range confs {
		adapter, syntax, err := newAdapter(conf)
		if err != nil {
			logger.Error("skipping misconfigured stand", "stand", name, "error", err)
			continue
		}
		r.stands[name] = &Stand{
			Name:    name,
			Vendor:  conf.Vendor,
			Syntax:  syntax,
			adapter: adapter,
		}
		logger.Debug("registered stand", "stand", name, "vendor", conf.Vendor, "syntax", syntax.String())
	}

	logger.Info("stand registry built", "stands", len(r.stands), "configured", len(confs))
	return r
}

// Get returns the stand registered under name.
func (r *Registry) Get(name string) (*Stand, bool) {
	s, ok := r.stands[name]
	return s, ok
}

// Names returns all registered stand names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.stands))
	for name := range r.stands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all stands, sorted by name.
func (r *Registry) All() []*Stand {
	out := make([]*Stand, 0, len(r.stands))
	for _, name := range r.Names() {
		out = append(out, r.stands[name])
	}
	return out
}

// Len returns the number of registered stands.
func (r *Registry) Len() int { return len(r.stands) }

// Close closes every adapter. Called at process shutdown.
func (r *Registry) Close() {
	logger := log.WithComponent("stand")
	for name, s := range r.stands {
		if err := s.Close(); err != nil {
			logger.Warn("closing stand adapter", "stand", name, "error", err)
		}
	}
}

func newAdapter(conf config.StandConf) (Adapter, Syntax, error) {
	vendor := strings.TrimSpace(conf.Vendor)
	if vendor == "" {
		return nil, 0, fmt.Errorf("vendor is not set")
	}
	syntax, ok := vendorSyntax[vendor]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported vendor %q", vendor)
	}

	switch vendor {
	case "postgres":
		if err := requireKeys(map[string]bool{
			"dbname":   conf.DBName != "",
			"user":     conf.User != "",
			"password": conf.Password != "",
			"host":     conf.Host != "",
			"port":     conf.Port > 0,
		}); err != nil {
			return nil, 0, err
		}
		return NewPostgres(conf.DBName, conf.User, conf.Password, conf.Host, conf.Port), syntax, nil
	case "sqlite":
		if err := requireKeys(map[string]bool{"path": conf.Path != ""}); err != nil {
			return nil, 0, err
		}
		return NewSQLite(conf.Path), syntax, nil
	case "mongo":
		if err := requireKeys(map[string]bool{
			"host":       conf.Host != "",
			"db":         conf.DB != "",
			"collection": conf.Collection != "",
		}); err != nil {
			return nil, 0, err
		}
		return NewMongo(conf.Host, conf.DB, conf.Collection), syntax, nil
	default:
		return nil, 0, fmt.Errorf("unsupported vendor %q", vendor)
	}
}

func requireKeys(present map[string]bool) error {
	var missing []string
	for key, ok := range present {
		if !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}
