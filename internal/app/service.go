package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hylla/trisync/internal/domain"
)

// IDSource selects how shared record ids are produced.
type IDSource string

// IDSource values.
const (
	IDSourceExternal IDSource = "uuid"
	IDSourceStore    IDSource = "store"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	IDSource            IDSource
	DefaultAssigneeRole domain.Role
	PlaceholderDomain   string
	Authoritative       domain.StoreName
	SyncTargets         []domain.StoreName
	SyncCollections     []string
	IgnoreFields        []string
	WebhookTargets      []domain.StoreName
}

// Clock returns the current time.
type Clock func() time.Time

// Service owns the replication and reconciliation flows across stores.
type Service struct {
	stores    *StoreRegistry
	directory DirectoryLookup
	ids       IdentifierAllocator
	bootstrap AncestorBootstrapper
	differ    Differ
	clock     Clock
	log       Logger
	cfg       ServiceConfig
}

// NewService constructs a new value for this package. A nil directory falls
// back to the admin-store directory; a nil logger discards output.
func NewService(stores *StoreRegistry, directory DirectoryLookup, idGen IDGenerator, clock Clock, logger Logger, cfg ServiceConfig) *Service {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = nopLogger{}
	}
	cfg = sanitizeServiceConfig(cfg)
	if cfg.IDSource == IDSourceStore {
		idGen = nil
	}
	if directory == nil {
		directory = NewStoreDirectory(stores, cfg.Authoritative)
	}
	return &Service{
		stores:    stores,
		directory: directory,
		ids:       NewIdentifierAllocator(idGen),
		bootstrap: NewAncestorBootstrapper(clock),
		differ:    NewDiffer(cfg.IgnoreFields),
		clock:     clock,
		log:       logger,
		cfg:       cfg,
	}
}

// Config returns the sanitized service configuration.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// store resolves one logical store from the registry.
func (s *Service) store(ctx context.Context, name domain.StoreName) (DocumentStore, error) {
	return s.stores.Store(ctx, name)
}

// resolveTarget validates a dependent store name against the configured targets.
func (s *Service) resolveTarget(raw string) (domain.StoreName, error) {
	target, err := domain.ParseStoreName(raw)
	if err != nil {
		return "", invalidf("unknown target system %q", raw)
	}
	if target == s.cfg.Authoritative {
		return "", invalidf("target system %q is the authoritative store", raw)
	}
	if !slices.Contains(s.cfg.SyncTargets, target) {
		return "", invalidf("target system %q is not enabled for sync", raw)
	}
	return target, nil
}

// sanitizeServiceConfig applies defaults to missing configuration values.
func sanitizeServiceConfig(cfg ServiceConfig) ServiceConfig {
	if cfg.IDSource != IDSourceStore {
		cfg.IDSource = IDSourceExternal
	}
	if role, err := domain.ParseRole(string(cfg.DefaultAssigneeRole)); err == nil {
		cfg.DefaultAssigneeRole = role
	} else {
		cfg.DefaultAssigneeRole = domain.RoleEmployee
	}
	cfg.PlaceholderDomain = strings.Trim(strings.TrimSpace(cfg.PlaceholderDomain), ".")
	if cfg.PlaceholderDomain == "" {
		cfg.PlaceholderDomain = "placeholder"
	}
	if cfg.Authoritative == "" {
		cfg.Authoritative = domain.StoreAdmin
	}
	if len(cfg.SyncTargets) == 0 {
		cfg.SyncTargets = []domain.StoreName{domain.StoreEmployee, domain.StoreIntern}
	}
	if len(cfg.SyncCollections) == 0 {
		cfg.SyncCollections = domain.MasterCollections()
	}
	collections := make([]string, 0, len(cfg.SyncCollections))
	for _, c := range cfg.SyncCollections {
		c = strings.TrimSpace(c)
		if domain.IsMasterCollection(c) && !slices.Contains(collections, c) {
			collections = append(collections, c)
		}
	}
	cfg.SyncCollections = collections
	if len(cfg.WebhookTargets) == 0 {
		cfg.WebhookTargets = slices.Clone(cfg.SyncTargets)
	}
	return cfg
}
