// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package deploy applies a whole stack without a formae agent: the data lake
// is converged first, then log sources and subscribers are attached once its
// reference is resolved.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/base"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/datalake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/logsource"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/subscriber"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/stack"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

// LakeLogicalID is the logical identity of the stack's data lake.
const LakeLogicalID = "lake"

// Deployer applies, inspects and destroys stacks against one target.
type Deployer struct {
	plane sltransport.ControlPlane
	cfg   *config.Config
	opts  provisioning.Options

	orchestrator *provisioning.Orchestrator
	sequencer    *logsource.Sequencer
	registrar    *subscriber.Registrar
	poller       *datalake.Poller
}

// New creates a deployer for the target described by cfg.
func New(plane sltransport.ControlPlane, cfg *config.Config, opts provisioning.Options) *Deployer {
	version := cfg.Settings.DefaultSourceVersion
	return &Deployer{
		plane:        plane,
		cfg:          cfg,
		opts:         opts,
		orchestrator: provisioning.NewOrchestrator(datalake.NewHandler(plane), datalake.NewPoller(plane), opts),
		sequencer:    logsource.NewSequencer(plane, opts, version),
		registrar:    subscriber.NewRegistrar(plane, opts.Metrics, version),
		poller:       datalake.NewPoller(plane),
	}
}

// Orchestrator exposes the lake orchestrator, mainly for cancellation.
func (d *Deployer) Orchestrator() *provisioning.Orchestrator {
	return d.orchestrator
}

// SubscriberReport is the outcome of one subscriber of the stack.
type SubscriberReport struct {
	Name         string
	Registration subscriber.Registration
	// Existing is set when a subscriber with this name was already present.
	Existing bool
	Err      error
}

// Report is the outcome of an Apply.
type Report struct {
	RunID       string
	Lake        provisioning.Result
	Sources     logsource.Chain
	Subscribers []SubscriberReport
}

// Err aggregates every failure of the run.
func (r Report) Err() error {
	var merr *multierror.Error
	if r.Lake.Err != nil {
		merr = multierror.Append(merr, r.Lake.Err)
	}
	if r.Sources.Err != nil {
		merr = multierror.Append(merr, r.Sources.Err)
	}
	for _, sub := range r.Subscribers {
		if sub.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("subscriber %s: %w", sub.Name, sub.Err))
		}
	}
	return merr.ErrorOrNil()
}

func (d *Deployer) parent() base.NativeID {
	return base.NativeID{Account: d.cfg.Account, Region: d.cfg.Region}
}

// Apply converges the lake, then sequences the log sources and registers the
// subscribers concurrently. Nothing is attached unless the lake is Ready.
func (d *Deployer) Apply(ctx context.Context, s *stack.Stack) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	logger := zerolog.Ctx(ctx).With().Str("stack", s.Name).Str("run_id", report.RunID).Logger()
	ctx = logger.WithContext(ctx)

	req, err := d.lakeRequest(ctx, s, report.RunID)
	if err != nil {
		return report, err
	}

	resolved := d.orchestrator.Resolved(LakeLogicalID)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := d.orchestrator.Converge(gctx, req)
		if err != nil {
			return err
		}
		report.Lake = res
		if res.Status != provisioning.StatusReady {
			return fmt.Errorf("data lake %s: %w", res.Status, res.Err)
		}
		return nil
	})

	g.Go(func() error {
		if _, err := resolved.Wait(gctx); err != nil {
			return err
		}
		report.Sources = d.sequencer.Sequence(gctx, d.parent().String(), s.Sources)
		return nil
	})

	report.Subscribers = make([]SubscriberReport, len(s.Subscribers))
	for i, spec := range s.Subscribers {
		g.Go(func() error {
			report.Subscribers[i] = d.register(gctx, resolved, spec)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, report.Err()
}

func (d *Deployer) lakeRequest(ctx context.Context, s *stack.Stack, token string) (provisioning.Request, error) {
	props := s.LakeProperties(d.cfg)
	if props.MetaStoreManagerRoleArn == "" {
		props.MetaStoreManagerRoleArn = DefaultMetaStoreManagerRoleArn(d.cfg)
	}

	req := provisioning.Request{
		LogicalID:        LakeLogicalID,
		Action:           provisioning.ActionCreate,
		Properties:       props,
		IdempotencyToken: token,
	}

	lakes, err := d.plane.ListDataLakes(ctx, []string{d.cfg.Region})
	if err != nil {
		return req, fmt.Errorf("failed to describe data lake: %w", err)
	}
	// A lake that exists, ready or not, is reconfigured instead of created.
	if len(lakes) > 0 {
		req.Action = provisioning.ActionUpdate
		req.PhysicalID = d.parent().String()
	}
	return req, nil
}

func (d *Deployer) register(ctx context.Context, resolved *provisioning.Resolved, spec stack.SubscriberSpec) SubscriberReport {
	report := SubscriberReport{Name: spec.Name}

	if _, err := resolved.Wait(ctx); err != nil {
		report.Err = err
		return report
	}
	parentID, err := resolved.Reference()
	if err != nil {
		report.Err = err
		return report
	}

	existing, err := d.findSubscriber(ctx, spec.Name)
	if err != nil {
		report.Err = err
		return report
	}
	if existing != nil {
		report.Existing = true
		report.Registration = subscriber.Registration{
			SubscriberID:   existing.ID,
			SubscriberArn:  existing.Arn,
			ShareReference: existing.ResourceShareArn,
			Region:         d.cfg.Region,
		}
		return report
	}

	report.Registration, report.Err = d.registrar.Register(ctx, parentID, subscriber.Binding{
		Name:        spec.Name,
		Description: spec.Description,
		Principal:   lake.Principal{Account: spec.Principal, ExternalID: spec.ExternalID},
		AccessTypes: spec.AccessTypes,
		Sources:     spec.Sources,
	})
	return report
}

func (d *Deployer) findSubscriber(ctx context.Context, name string) (*sltransport.Subscriber, error) {
	subs, err := provisioning.Retry(ctx, d.opts, "ListSubscribers", func(ctx context.Context) ([]sltransport.Subscriber, error) {
		subs, err := d.plane.ListSubscribers(ctx)
		if err != nil {
			return nil, provisioning.Classify("ListSubscribers", err)
		}
		return subs, nil
	})
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].Name == name {
			return &subs[i], nil
		}
	}
	return nil, nil
}

// StatusReport describes the deployed state of a target.
type StatusReport struct {
	Lake        provisioning.Check
	Sources     []string
	Subscribers []sltransport.Subscriber
}

// Status reads the lake, its enabled sources and its subscribers.
func (d *Deployer) Status(ctx context.Context) (StatusReport, error) {
	var report StatusReport

	check, err := d.poller.Check(ctx, d.parent().String())
	if err != nil {
		return report, err
	}
	report.Lake = check

	refs, err := d.plane.ListLogSources(ctx, []string{d.cfg.Region})
	if err != nil {
		return report, fmt.Errorf("failed to list log sources: %w", err)
	}
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		id := lake.LogSourceSpec{Kind: lake.SourceKind(ref.SourceName), Version: ref.SourceVersion}.Identity()
		if !seen[id] {
			seen[id] = true
			report.Sources = append(report.Sources, id)
		}
	}
	sort.Strings(report.Sources)

	report.Subscribers, err = d.plane.ListSubscribers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return report, nil
}

// Destroy removes the stack's subscribers, withdraws its sources in reverse
// order and finally deletes the lake. Lake deletion is not awaited.
func (d *Deployer) Destroy(ctx context.Context, s *stack.Stack) error {
	var merr *multierror.Error

	for _, spec := range s.Subscribers {
		existing, err := d.findSubscriber(ctx, spec.Name)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		if existing == nil {
			continue
		}
		if err := d.plane.DeleteSubscriber(ctx, existing.ID); err != nil && !sltransport.IsNotFound(err) {
			merr = multierror.Append(merr, fmt.Errorf("subscriber %s: %w", spec.Name, err))
		}
	}

	if chain := d.sequencer.Withdraw(ctx, d.parent().String(), s.Sources); chain.Err != nil {
		merr = multierror.Append(merr, chain.Err)
	}

	// Subscribers and sources must be gone before the lake can be deleted.
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}

	res, err := d.orchestrator.Converge(ctx, provisioning.Request{
		LogicalID:  LakeLogicalID,
		Action:     provisioning.ActionDelete,
		PhysicalID: d.parent().String(),
	})
	if err != nil {
		return err
	}
	if res.Status != provisioning.StatusReady {
		return errors.Join(fmt.Errorf("data lake delete %s", res.Status), res.Err)
	}
	return nil
}

// DefaultMetaStoreManagerRoleArn is the conventional meta-store manager role
// of the target account.
func DefaultMetaStoreManagerRoleArn(cfg *config.Config) string {
	return fmt.Sprintf("arn:%s:iam::%s:role/AmazonSecurityLakeMetaStoreManager", config.Partition(cfg.Region), cfg.Account)
}
