// pkg/transport/securitylake/client.go
package securitylake

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	sl "github.com/aws/aws-sdk-go-v2/service/securitylake"
	sltypes "github.com/aws/aws-sdk-go-v2/service/securitylake/types"
)

// Client wraps the AWS SDK Security Lake client
type Client struct {
	api *sl.Client
}

var _ ControlPlane = &Client{}

// NewClient creates a Security Lake client from an AWS config.
// endpoint overrides the service endpoint when set (e.g. a local emulator).
func NewClient(cfg aws.Config, endpoint string) *Client {
	api := sl.NewFromConfig(cfg, func(o *sl.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &Client{api: api}
}

func (c *Client) CreateDataLake(ctx context.Context, in DataLakeInput) (*DataLake, error) {
	out, err := c.api.CreateDataLake(ctx, &sl.CreateDataLakeInput{
		Configurations:          []sltypes.DataLakeConfiguration{toConfiguration(in)},
		MetaStoreManagerRoleArn: aws.String(in.MetaStoreManagerRoleArn),
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return firstLake(out.DataLakes, in.Region), nil
}

func (c *Client) UpdateDataLake(ctx context.Context, in DataLakeInput) (*DataLake, error) {
	input := &sl.UpdateDataLakeInput{
		Configurations: []sltypes.DataLakeConfiguration{toConfiguration(in)},
	}
	if in.MetaStoreManagerRoleArn != "" {
		input.MetaStoreManagerRoleArn = aws.String(in.MetaStoreManagerRoleArn)
	}
	out, err := c.api.UpdateDataLake(ctx, input)
	if err != nil {
		return nil, classifyError(err)
	}
	return firstLake(out.DataLakes, in.Region), nil
}

func (c *Client) ListDataLakes(ctx context.Context, regions []string) ([]DataLake, error) {
	out, err := c.api.ListDataLakes(ctx, &sl.ListDataLakesInput{Regions: regions})
	if err != nil {
		return nil, classifyError(err)
	}
	lakes := make([]DataLake, 0, len(out.DataLakes))
	for _, r := range out.DataLakes {
		lakes = append(lakes, fromResource(r))
	}
	return lakes, nil
}

func (c *Client) DeleteDataLake(ctx context.Context, regions []string) error {
	_, err := c.api.DeleteDataLake(ctx, &sl.DeleteDataLakeInput{Regions: regions})
	return classifyError(err)
}

func (c *Client) CreateAwsLogSource(ctx context.Context, in LogSourceInput) error {
	out, err := c.api.CreateAwsLogSource(ctx, &sl.CreateAwsLogSourceInput{
		Sources: []sltypes.AwsLogSourceConfiguration{toLogSourceConfiguration(in)},
	})
	if err != nil {
		return classifyError(err)
	}
	if len(out.Failed) > 0 {
		return NewError(ErrorCodeInvalidInput,
			fmt.Sprintf("log source %s rejected for accounts: %s", in.SourceName, strings.Join(out.Failed, ",")), nil)
	}
	return nil
}

func (c *Client) DeleteAwsLogSource(ctx context.Context, in LogSourceInput) error {
	out, err := c.api.DeleteAwsLogSource(ctx, &sl.DeleteAwsLogSourceInput{
		Sources: []sltypes.AwsLogSourceConfiguration{toLogSourceConfiguration(in)},
	})
	if err != nil {
		return classifyError(err)
	}
	if len(out.Failed) > 0 {
		return NewError(ErrorCodeInvalidInput,
			fmt.Sprintf("log source %s not removed for accounts: %s", in.SourceName, strings.Join(out.Failed, ",")), nil)
	}
	return nil
}

func (c *Client) ListLogSources(ctx context.Context, regions []string) ([]LogSourceRef, error) {
	var refs []LogSourceRef
	var token *string
	for {
		out, err := c.api.ListLogSources(ctx, &sl.ListLogSourcesInput{
			Regions:   regions,
			NextToken: token,
		})
		if err != nil {
			return nil, classifyError(err)
		}
		for _, src := range out.Sources {
			for _, r := range src.Sources {
				ref, ok := fromLogSourceResource(r)
				if !ok {
					continue
				}
				ref.Account = aws.ToString(src.Account)
				ref.Region = aws.ToString(src.Region)
				refs = append(refs, ref)
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return refs, nil
		}
		token = out.NextToken
	}
}

func (c *Client) CreateSubscriber(ctx context.Context, in SubscriberInput) (*Subscriber, error) {
	accessTypes := make([]sltypes.AccessType, 0, len(in.AccessTypes))
	for _, t := range in.AccessTypes {
		accessTypes = append(accessTypes, sltypes.AccessType(t))
	}
	input := &sl.CreateSubscriberInput{
		SubscriberName: aws.String(in.Name),
		SubscriberIdentity: &sltypes.AwsIdentity{
			Principal:  aws.String(in.Principal),
			ExternalId: aws.String(in.ExternalID),
		},
		AccessTypes: accessTypes,
		Sources:     toLogSourceResources(in.Sources),
	}
	if in.Description != "" {
		input.SubscriberDescription = aws.String(in.Description)
	}
	out, err := c.api.CreateSubscriber(ctx, input)
	if err != nil {
		return nil, classifyError(err)
	}
	if out.Subscriber == nil {
		return nil, NewError(ErrorCodeInternalError, "no subscriber in response", nil)
	}
	sub := fromSubscriber(*out.Subscriber)
	return &sub, nil
}

func (c *Client) GetSubscriber(ctx context.Context, id string) (*Subscriber, error) {
	out, err := c.api.GetSubscriber(ctx, &sl.GetSubscriberInput{SubscriberId: aws.String(id)})
	if err != nil {
		return nil, classifyError(err)
	}
	if out.Subscriber == nil {
		return nil, NewError(ErrorCodeResourceNotFound, fmt.Sprintf("subscriber %s not found", id), nil)
	}
	sub := fromSubscriber(*out.Subscriber)
	return &sub, nil
}

func (c *Client) DeleteSubscriber(ctx context.Context, id string) error {
	_, err := c.api.DeleteSubscriber(ctx, &sl.DeleteSubscriberInput{SubscriberId: aws.String(id)})
	return classifyError(err)
}

func (c *Client) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	var subs []Subscriber
	var token *string
	for {
		out, err := c.api.ListSubscribers(ctx, &sl.ListSubscribersInput{NextToken: token})
		if err != nil {
			return nil, classifyError(err)
		}
		for _, s := range out.Subscribers {
			subs = append(subs, fromSubscriber(s))
		}
		if aws.ToString(out.NextToken) == "" {
			return subs, nil
		}
		token = out.NextToken
	}
}

func toConfiguration(in DataLakeInput) sltypes.DataLakeConfiguration {
	cfg := sltypes.DataLakeConfiguration{
		Region: aws.String(in.Region),
	}
	if in.KmsKeyID != "" {
		cfg.EncryptionConfiguration = &sltypes.DataLakeEncryptionConfiguration{
			KmsKeyId: aws.String(in.KmsKeyID),
		}
	}
	if in.ExpirationDays > 0 || len(in.Transitions) > 0 {
		lifecycle := &sltypes.DataLakeLifecycleConfiguration{}
		if in.ExpirationDays > 0 {
			lifecycle.Expiration = &sltypes.DataLakeLifecycleExpiration{
				Days: aws.Int32(in.ExpirationDays),
			}
		}
		for _, t := range in.Transitions {
			lifecycle.Transitions = append(lifecycle.Transitions, sltypes.DataLakeLifecycleTransition{
				Days:         aws.Int32(t.Days),
				StorageClass: aws.String(t.StorageClass),
			})
		}
		cfg.LifecycleConfiguration = lifecycle
	}
	return cfg
}

func toLogSourceConfiguration(in LogSourceInput) sltypes.AwsLogSourceConfiguration {
	cfg := sltypes.AwsLogSourceConfiguration{
		SourceName: sltypes.AwsLogSourceName(in.SourceName),
		Regions:    in.Regions,
		Accounts:   in.Accounts,
	}
	if in.SourceVersion != "" {
		cfg.SourceVersion = aws.String(in.SourceVersion)
	}
	return cfg
}

func toLogSourceResources(refs []LogSourceRef) []sltypes.LogSourceResource {
	out := make([]sltypes.LogSourceResource, 0, len(refs))
	for _, ref := range refs {
		src := sltypes.AwsLogSourceResource{SourceName: sltypes.AwsLogSourceName(ref.SourceName)}
		if ref.SourceVersion != "" {
			src.SourceVersion = aws.String(ref.SourceVersion)
		}
		out = append(out, &sltypes.LogSourceResourceMemberAwsLogSource{Value: src})
	}
	return out
}

func fromLogSourceResource(r sltypes.LogSourceResource) (LogSourceRef, bool) {
	v, ok := r.(*sltypes.LogSourceResourceMemberAwsLogSource)
	if !ok {
		// Custom sources are not managed by this plugin
		return LogSourceRef{}, false
	}
	return LogSourceRef{
		SourceName:    string(v.Value.SourceName),
		SourceVersion: aws.ToString(v.Value.SourceVersion),
	}, true
}

func fromResource(r sltypes.DataLakeResource) DataLake {
	lake := DataLake{
		Arn:          aws.ToString(r.DataLakeArn),
		Region:       aws.ToString(r.Region),
		S3BucketArn:  aws.ToString(r.S3BucketArn),
		CreateStatus: string(r.CreateStatus),
	}
	if r.UpdateStatus != nil {
		lake.UpdateStatus = string(r.UpdateStatus.Status)
		if r.UpdateStatus.Exception != nil {
			lake.UpdateFailure = aws.ToString(r.UpdateStatus.Exception.Reason)
		}
	}
	if r.EncryptionConfiguration != nil {
		lake.KmsKeyID = aws.ToString(r.EncryptionConfiguration.KmsKeyId)
	}
	if lc := r.LifecycleConfiguration; lc != nil {
		if lc.Expiration != nil {
			lake.ExpirationDays = aws.ToInt32(lc.Expiration.Days)
		}
		for _, t := range lc.Transitions {
			lake.Transitions = append(lake.Transitions, Transition{
				Days:         aws.ToInt32(t.Days),
				StorageClass: aws.ToString(t.StorageClass),
			})
		}
	}
	return lake
}

func fromSubscriber(s sltypes.SubscriberResource) Subscriber {
	sub := Subscriber{
		ID:               aws.ToString(s.SubscriberId),
		Arn:              aws.ToString(s.SubscriberArn),
		Name:             aws.ToString(s.SubscriberName),
		Description:      aws.ToString(s.SubscriberDescription),
		Status:           string(s.SubscriberStatus),
		ResourceShareArn: aws.ToString(s.ResourceShareArn),
	}
	if s.SubscriberIdentity != nil {
		sub.Principal = aws.ToString(s.SubscriberIdentity.Principal)
	}
	for _, t := range s.AccessTypes {
		sub.AccessTypes = append(sub.AccessTypes, string(t))
	}
	for _, r := range s.Sources {
		if ref, ok := fromLogSourceResource(r); ok {
			sub.Sources = append(sub.Sources, ref)
		}
	}
	return sub
}

// firstLake returns the lake for region from a create/update response,
// falling back to a pending placeholder when the response omits it.
func firstLake(lakes []sltypes.DataLakeResource, region string) *DataLake {
	for _, r := range lakes {
		if aws.ToString(r.Region) == region {
			lake := fromResource(r)
			return &lake
		}
	}
	if len(lakes) > 0 {
		lake := fromResource(lakes[0])
		return &lake
	}
	return &DataLake{Region: region, CreateStatus: StatusPending}
}
