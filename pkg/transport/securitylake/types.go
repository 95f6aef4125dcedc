// pkg/transport/securitylake/types.go
package securitylake

import "context"

// Data lake create/update status values reported by the control plane
const (
	StatusInitialized = "INITIALIZED"
	StatusPending     = "PENDING"
	StatusCompleted   = "COMPLETED"
	StatusFailed      = "FAILED"
)

// ControlPlane is the subset of the Security Lake API the plugin depends on
type ControlPlane interface {
	CreateDataLake(ctx context.Context, in DataLakeInput) (*DataLake, error)
	UpdateDataLake(ctx context.Context, in DataLakeInput) (*DataLake, error)
	ListDataLakes(ctx context.Context, regions []string) ([]DataLake, error)
	DeleteDataLake(ctx context.Context, regions []string) error

	CreateAwsLogSource(ctx context.Context, in LogSourceInput) error
	DeleteAwsLogSource(ctx context.Context, in LogSourceInput) error
	ListLogSources(ctx context.Context, regions []string) ([]LogSourceRef, error)

	CreateSubscriber(ctx context.Context, in SubscriberInput) (*Subscriber, error)
	GetSubscriber(ctx context.Context, id string) (*Subscriber, error)
	DeleteSubscriber(ctx context.Context, id string) error
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
}

// DataLakeInput configures a data lake in one region
type DataLakeInput struct {
	Region                  string
	KmsKeyID                string
	ExpirationDays          int32
	Transitions             []Transition
	MetaStoreManagerRoleArn string
}

// Transition is a lifecycle storage class transition
type Transition struct {
	Days         int32
	StorageClass string
}

// DataLake is the describe view of a regional data lake
type DataLake struct {
	Arn           string
	Region        string
	S3BucketArn   string
	CreateStatus  string
	UpdateStatus  string
	UpdateFailure string

	KmsKeyID       string
	ExpirationDays int32
	Transitions    []Transition
}

// LogSourceInput adds or removes one native log source
type LogSourceInput struct {
	SourceName    string
	SourceVersion string
	Accounts      []string
	Regions       []string
}

// LogSourceRef is a log source enabled for an account and region
type LogSourceRef struct {
	Account       string
	Region        string
	SourceName    string
	SourceVersion string
}

// SubscriberInput creates a subscriber
type SubscriberInput struct {
	Name        string
	Description string
	Principal   string
	ExternalID  string
	AccessTypes []string
	Sources     []LogSourceRef
}

// Subscriber is the describe view of a subscriber
type Subscriber struct {
	ID               string
	Arn              string
	Name             string
	Description      string
	Principal        string
	Status           string
	ResourceShareArn string
	AccessTypes      []string
	Sources          []LogSourceRef
}
