package attachments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"incidentreg/config"
	"incidentreg/core/metrics"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

// OwnerResolver finds the region governing an attachment instance.
type OwnerResolver interface {
	ControllingRegion(ctx context.Context, kind Kind, attachmentID int64) (*store.Region, error)
	LegacyScanEnabled() bool
}

type SweepReport struct {
	Checked int
	Orphans map[Kind][]string
}

func (r *SweepReport) Total() int {
	n := 0
	for _, names := range r.Orphans {
		n += len(names)
	}
	return n
}

// Sweeper periodically reports attachments that no region governs. It never
// deletes anything.
type Sweeper struct {
	cfg      config.SchedulerConfig
	registry *Registry
	owners   OwnerResolver
	audit    store.AuditStore
	logger   *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewSweeper(cfg config.SchedulerConfig, registry *Registry, owners OwnerResolver, audit store.AuditStore, logger *utils.Logger) *Sweeper {
	return &Sweeper{cfg: cfg, registry: registry, owners: owners, audit: audit, logger: logger}
}

func (s *Sweeper) StartWithContext(ctx context.Context) error {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(s.logger)),
		cron.WithChain(cron.Recover(cron.PrintfLogger(s.logger)), cron.SkipIfStillRunning(cron.PrintfLogger(s.logger))),
	)
	if _, err := c.AddFunc(s.cfg.OrphanSweepSpec, func() {
		if _, err := s.RunOnce(runCtx); err != nil {
			s.logger.Errorf("orphan sweep: %v", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("orphan sweep schedule %q: %w", s.cfg.OrphanSweepSpec, err)
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true
	s.logger.Printf("orphan sweep scheduled (%s)", s.cfg.OrphanSweepSpec)
	return nil
}

func (s *Sweeper) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c, cancel, wasRunning := s.cron, s.cancel, s.running
	s.cron, s.cancel, s.running = nil, nil, false
	s.mu.Unlock()
	if !wasRunning {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce walks every kind and records ownerless instances.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{Orphans: map[Kind][]string{}}
	for _, d := range Descriptors() {
		if d.Parent == ParentNone && !s.owners.LegacyScanEnabled() {
			continue
		}
		items, err := s.registry.ListKeys(ctx, d.Kind)
		if err != nil {
			return nil, err
		}
		var orphans []string
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			orphan, err := s.isOrphan(ctx, d, item)
			var gone *NotFoundError
			if errors.As(err, &gone) {
				// deleted since ListKeys
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%s %q: %w", d.Token, item.Name, err)
			}
			report.Checked++
			if orphan {
				orphans = append(orphans, item.Name)
			}
		}
		sort.Strings(orphans)
		metrics.OrphanAttachments.WithLabelValues(d.Token).Set(float64(len(orphans)))
		if len(orphans) > 0 {
			report.Orphans[d.Kind] = orphans
		}
	}
	if total := report.Total(); total > 0 {
		s.logger.Printf("orphan sweep: %d of %d attachments have no owner", total, report.Checked)
		if s.audit != nil {
			if err := s.audit.Log(ctx, "system", "attachments.orphans", describeOrphans(report)); err != nil {
				s.logger.Errorf("orphan sweep audit: %v", err)
			}
		}
	}
	return report, nil
}

// District logos never resolve to a region, so a logo is orphaned only when
// its district is gone.
func (s *Sweeper) isOrphan(ctx context.Context, d Descriptor, item Blob) (bool, error) {
	if d.Parent == ParentDistrict {
		return item.ParentID == nil, nil
	}
	region, err := s.owners.ControllingRegion(ctx, d.Kind, item.ID)
	if err != nil {
		return false, err
	}
	return region == nil, nil
}

func describeOrphans(report *SweepReport) string {
	var parts []string
	for _, d := range Descriptors() {
		if names := report.Orphans[d.Kind]; len(names) > 0 {
			parts = append(parts, fmt.Sprintf("%s=%s", d.Token, strings.Join(names, ",")))
		}
	}
	return strings.Join(parts, " ")
}
