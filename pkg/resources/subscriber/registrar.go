// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package subscriber

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

var tracer = otel.Tracer("github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/subscriber")

// Binding grants one external principal access to a data lake.
type Binding struct {
	Name        string
	Description string
	Principal   lake.Principal
	AccessTypes []lake.AccessType
	Sources     []lake.LogSourceSpec
}

// Registration is a created subscriber.
type Registration struct {
	SubscriberID  string
	SubscriberArn string
	// ShareReference is the resource share ARN, or the subscriber ARN when
	// the access type creates no share.
	ShareReference string
	Region         string
}

// Registrar creates subscribers on a resolved data lake. Each registration
// is a single call; failures are returned, not retried.
type Registrar struct {
	plane          sltransport.ControlPlane
	metrics        *provisioning.Metrics
	defaultVersion string
}

// NewRegistrar creates a registrar. metrics may be nil.
func NewRegistrar(plane sltransport.ControlPlane, metrics *provisioning.Metrics, defaultVersion string) *Registrar {
	if defaultVersion == "" {
		defaultVersion = lake.DefaultSourceVersion
	}
	return &Registrar{plane: plane, metrics: metrics, defaultVersion: defaultVersion}
}

// Register creates the subscriber for b on the lake referenced by parentID,
// which must be the ARN published when the lake became ready.
func (r *Registrar) Register(ctx context.Context, parentID string, b Binding) (Registration, error) {
	ctx, span := tracer.Start(ctx, "subscriber.Register")
	defer span.End()
	span.SetAttributes(attribute.String("parent_id", parentID), attribute.String("principal", b.Principal.Account))

	reg, err := r.register(ctx, parentID, b)
	if err != nil {
		r.metrics.RecordRegistration("failure")
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
		zerolog.Ctx(ctx).Warn().Err(err).Str("principal", b.Principal.Account).Msg("subscriber registration failed")
		return Registration{}, &provisioning.RegistrationError{Principal: b.Principal.Account, ParentID: parentID, Err: err}
	}

	r.metrics.RecordRegistration("success")
	zerolog.Ctx(ctx).Info().
		Str("principal", b.Principal.Account).
		Str("subscriber_id", reg.SubscriberID).
		Str("share", reg.ShareReference).
		Msg("subscriber registered")
	return reg, nil
}

func (r *Registrar) register(ctx context.Context, parentID string, b Binding) (Registration, error) {
	parent, err := parseParent(parentID)
	if err != nil {
		return Registration{}, err
	}
	in, err := r.toInput(b)
	if err != nil {
		return Registration{}, provisioning.Permanent("CreateSubscriber", err)
	}

	sub, err := r.plane.CreateSubscriber(ctx, in)
	if err != nil {
		return Registration{}, provisioning.Classify("CreateSubscriber", err)
	}

	share := sub.ResourceShareArn
	if share == "" {
		share = sub.Arn
	}
	return Registration{
		SubscriberID:   sub.ID,
		SubscriberArn:  sub.Arn,
		ShareReference: share,
		Region:         parent.Region,
	}, nil
}

// parseParent requires a resolved data lake ARN
func parseParent(parentID string) (arn.ARN, error) {
	if parentID == "" {
		return arn.ARN{}, provisioning.ErrNotResolved
	}
	parent, err := arn.Parse(parentID)
	if err != nil {
		return arn.ARN{}, provisioning.Permanent("CreateSubscriber", fmt.Errorf("parent is not a data lake ARN: %w", err))
	}
	if parent.Service != "securitylake" {
		return arn.ARN{}, provisioning.Permanent("CreateSubscriber",
			fmt.Errorf("parent %s is a %s resource, not a data lake", parentID, parent.Service))
	}
	return parent, nil
}

func (r *Registrar) toInput(b Binding) (sltransport.SubscriberInput, error) {
	if b.Name == "" {
		return sltransport.SubscriberInput{}, errors.New("subscriber name is required")
	}
	if err := b.Principal.Validate(); err != nil {
		return sltransport.SubscriberInput{}, err
	}
	if err := lake.ValidateAccessTypes(b.AccessTypes); err != nil {
		return sltransport.SubscriberInput{}, err
	}
	if len(b.Sources) == 0 {
		return sltransport.SubscriberInput{}, errors.New("at least one log source is required")
	}

	in := sltransport.SubscriberInput{
		Name:        b.Name,
		Description: b.Description,
		Principal:   b.Principal.Account,
		ExternalID:  b.Principal.ExternalID,
	}
	for _, t := range b.AccessTypes {
		in.AccessTypes = append(in.AccessTypes, string(t))
	}
	for _, spec := range b.Sources {
		spec = spec.WithDefaultVersion(r.defaultVersion)
		in.Sources = append(in.Sources, sltransport.LogSourceRef{
			SourceName:    string(spec.Kind),
			SourceVersion: spec.Version,
		})
	}
	return in, nil
}
