// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package logsource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/base"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

var tracer = otel.Tracer("github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/logsource")

// Outcome of one chain item
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeAlreadyAccepted Outcome = "already_accepted"
	OutcomeWithdrawn       Outcome = "withdrawn"
	OutcomeFailed          Outcome = "failed"
)

// Link is one planned submission. After is the handle the submission is
// ordered behind: the parent id for the first link, otherwise the identity
// of the previous link.
type Link struct {
	Index    int
	Spec     lake.LogSourceSpec
	Identity string
	After    string
}

// ItemResult is the outcome of one distinct identity in a chain.
type ItemResult struct {
	Index       int
	Identity    string
	After       string
	Outcome     Outcome
	Err         error
	SubmittedAt time.Time
	CompletedAt time.Time
}

// Chain is the result of sequencing one batch of log sources.
type Chain struct {
	ParentID string
	Items    []ItemResult
	// Err aggregates one *provisioning.SequencingError per failed item.
	Err error
}

// Succeeded returns the identities that are attached to the parent.
func (c Chain) Succeeded() []string {
	var out []string
	for _, item := range c.Items {
		if item.Outcome != OutcomeFailed {
			out = append(out, item.Identity)
		}
	}
	return out
}

// Failed returns the failed items in chain order.
func (c Chain) Failed() []ItemResult {
	var out []ItemResult
	for _, item := range c.Items {
		if item.Outcome == OutcomeFailed {
			out = append(out, item)
		}
	}
	return out
}

// Sequencer attaches log sources to a data lake one at a time, in order.
// A Sequencer is a single writer: concurrent calls are serialized.
type Sequencer struct {
	plane          sltransport.ControlPlane
	opts           provisioning.Options
	defaultVersion string

	mu sync.Mutex
	// accepted holds, per parent, the identity@account pairs known enabled.
	accepted map[string]map[string]bool
}

// NewSequencer creates a sequencer. Specs without a version get defaultVersion.
func NewSequencer(plane sltransport.ControlPlane, opts provisioning.Options, defaultVersion string) *Sequencer {
	if opts.Clock == nil {
		opts.Clock = provisioning.SystemClock()
	}
	if defaultVersion == "" {
		defaultVersion = lake.DefaultSourceVersion
	}
	return &Sequencer{
		plane:          plane,
		opts:           opts,
		defaultVersion: defaultVersion,
		accepted:       make(map[string]map[string]bool),
	}
}

// Plan normalizes specs into links: default versions applied, duplicate
// identities collapsed to their first occurrence, each link ordered after
// the previous one.
func Plan(parentID string, specs []lake.LogSourceSpec, defaultVersion string) []Link {
	seen := make(map[string]bool, len(specs))
	links := make([]Link, 0, len(specs))
	after := parentID
	for _, spec := range specs {
		spec = spec.WithDefaultVersion(defaultVersion)
		identity := spec.Identity()
		if seen[identity] {
			continue
		}
		seen[identity] = true
		links = append(links, Link{Index: len(links), Spec: spec, Identity: identity, After: after})
		after = identity
	}
	return links
}

// Sequence submits specs to the lake identified by parentID, strictly in
// order. Each submission starts only after the previous one returned.
// A failed item does not stop the chain.
func (s *Sequencer) Sequence(ctx context.Context, parentID string, specs []lake.LogSourceSpec) Chain {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "logsource.Sequence")
	defer span.End()
	span.SetAttributes(attribute.String("parent_id", parentID), attribute.Int("specs", len(specs)))

	chain := Chain{ParentID: parentID}
	links := Plan(parentID, specs, s.defaultVersion)
	if len(links) == 0 {
		return chain
	}

	parent, accepted, err := s.seed(ctx, parentID)
	if err != nil {
		chain.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "seed failed")
		return chain
	}

	var merr *multierror.Error
	for _, link := range links {
		item := s.attach(ctx, parent, accepted, link)
		if item.Err != nil {
			merr = multierror.Append(merr, &provisioning.SequencingError{
				Index: link.Index, Identity: link.Identity, Err: item.Err,
			})
		}
		chain.Items = append(chain.Items, item)
	}

	chain.Err = merr.ErrorOrNil()
	if chain.Err != nil {
		span.RecordError(chain.Err)
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d failed", len(chain.Failed()), len(chain.Items)))
	}
	return chain
}

func (s *Sequencer) attach(ctx context.Context, parent base.NativeID, accepted map[string]bool, link Link) ItemResult {
	logger := zerolog.Ctx(ctx).With().Int("index", link.Index).Str("source", link.Identity).Logger()
	item := ItemResult{Index: link.Index, Identity: link.Identity, After: link.After}

	var missing []string
	for _, account := range targets(parent, link.Spec) {
		if !accepted[acceptKey(link.Identity, account)] {
			missing = append(missing, account)
		}
	}
	if len(missing) == 0 {
		item.Outcome = OutcomeAlreadyAccepted
		s.opts.Metrics.RecordSubmission(string(link.Spec.Kind), string(item.Outcome))
		logger.Debug().Msg("log source already attached")
		return item
	}

	if err := link.Spec.Validate(); err != nil {
		item.Outcome = OutcomeFailed
		item.Err = provisioning.Permanent("CreateAwsLogSource", err)
		s.opts.Metrics.RecordSubmission(string(link.Spec.Kind), string(item.Outcome))
		logger.Warn().Err(err).Msg("log source rejected")
		return item
	}

	submit := link.Spec
	submit.Accounts = missing
	item.SubmittedAt = s.opts.Clock.Now()
	_, err := provisioning.Retry(ctx, s.opts, "CreateAwsLogSource", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.plane.CreateAwsLogSource(ctx, toInput(parent, submit))
	})
	item.CompletedAt = s.opts.Clock.Now()

	if err != nil {
		item.Outcome = OutcomeFailed
		item.Err = err
		logger.Warn().Err(err).Msg("log source submission failed")
	} else {
		item.Outcome = OutcomeAccepted
		for _, account := range missing {
			accepted[acceptKey(link.Identity, account)] = true
		}
		logger.Info().Strs("accounts", missing).Msg("log source attached")
	}
	s.opts.Metrics.RecordSubmission(string(link.Spec.Kind), string(item.Outcome))
	return item
}

// Withdraw removes specs from the lake in reverse order. Sources that are
// already gone count as withdrawn.
func (s *Sequencer) Withdraw(ctx context.Context, parentID string, specs []lake.LogSourceSpec) Chain {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "logsource.Withdraw")
	defer span.End()

	chain := Chain{ParentID: parentID}
	links := Plan(parentID, specs, s.defaultVersion)
	if len(links) == 0 {
		return chain
	}
	parent, err := base.ParseNativeID(base.RegionalFormat, parentID)
	if err != nil {
		chain.Err = provisioning.Permanent("DeleteAwsLogSource", err)
		return chain
	}
	accepted := s.accepted[parentID]

	var merr *multierror.Error
	for i := len(links) - 1; i >= 0; i-- {
		link := links[i]
		item := ItemResult{Index: link.Index, Identity: link.Identity, SubmittedAt: s.opts.Clock.Now()}
		_, err := provisioning.Retry(ctx, s.opts, "DeleteAwsLogSource", func(ctx context.Context) (struct{}, error) {
			err := s.plane.DeleteAwsLogSource(ctx, toInput(parent, link.Spec))
			if sltransport.IsNotFound(err) {
				return struct{}{}, nil
			}
			return struct{}{}, err
		})
		item.CompletedAt = s.opts.Clock.Now()
		if err != nil {
			item.Outcome = OutcomeFailed
			item.Err = err
			merr = multierror.Append(merr, &provisioning.SequencingError{
				Index: link.Index, Identity: link.Identity, Err: err,
			})
		} else {
			item.Outcome = OutcomeWithdrawn
			for _, account := range targets(parent, link.Spec) {
				delete(accepted, acceptKey(link.Identity, account))
			}
		}
		s.opts.Metrics.RecordSubmission(string(link.Spec.Kind), string(item.Outcome))
		chain.Items = append(chain.Items, item)
	}

	chain.Err = merr.ErrorOrNil()
	if chain.Err != nil {
		span.RecordError(chain.Err)
		span.SetStatus(codes.Error, "withdraw failed")
	}
	return chain
}

// Accepted returns the identities known to be attached to parentID, sorted.
func (s *Sequencer) Accepted(parentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(s.accepted[parentID]))
	out := make([]string, 0, len(s.accepted[parentID]))
	for key := range s.accepted[parentID] {
		identity, _, _ := strings.Cut(key, "@")
		if !seen[identity] {
			seen[identity] = true
			out = append(out, identity)
		}
	}
	sort.Strings(out)
	return out
}

// seed loads the sources already enabled on the parent the first time the
// parent is seen.
func (s *Sequencer) seed(ctx context.Context, parentID string) (base.NativeID, map[string]bool, error) {
	parent, err := base.ParseNativeID(base.RegionalFormat, parentID)
	if err != nil {
		return parent, nil, provisioning.Permanent("ListLogSources", err)
	}
	if accepted, ok := s.accepted[parentID]; ok {
		return parent, accepted, nil
	}

	refs, err := provisioning.Retry(ctx, s.opts, "ListLogSources", func(ctx context.Context) ([]sltransport.LogSourceRef, error) {
		return s.plane.ListLogSources(ctx, []string{parent.Region})
	})
	if err != nil {
		return parent, nil, err
	}

	accepted := make(map[string]bool, len(refs))
	for _, ref := range refs {
		account := ref.Account
		if account == "" {
			account = parent.Account
		}
		spec := lake.LogSourceSpec{Kind: lake.SourceKind(ref.SourceName), Version: ref.SourceVersion}
		accepted[acceptKey(spec.WithDefaultVersion(s.defaultVersion).Identity(), account)] = true
	}
	s.accepted[parentID] = accepted
	return parent, accepted, nil
}

// targets returns the accounts spec is enabled for: its own, or the lake's.
func targets(parent base.NativeID, spec lake.LogSourceSpec) []string {
	if len(spec.Accounts) == 0 {
		return []string{parent.Account}
	}
	return spec.Accounts
}

func acceptKey(identity, account string) string {
	return identity + "@" + account
}

func toInput(parent base.NativeID, spec lake.LogSourceSpec) sltransport.LogSourceInput {
	return sltransport.LogSourceInput{
		SourceName:    string(spec.Kind),
		SourceVersion: spec.Version,
		Accounts:      targets(parent, spec),
		Regions:       []string{parent.Region},
	}
}
