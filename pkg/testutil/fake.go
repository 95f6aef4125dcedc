// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

// Call is one recorded control plane call.
type Call struct {
	Method string
	Detail string
	Seq    int
}

// FakeControlPlane is an in-memory Security Lake.
// Create/Update status progressions are scripted per region; unscripted lakes
// report COMPLETED on the first describe.
type FakeControlPlane struct {
	Account string
	Region  string

	// CallDelay holds each call open, to expose overlapping writers.
	CallDelay time.Duration
	// Intercept, when set, can fail any call before it takes effect.
	Intercept func(method string, in any) error

	mu             sync.Mutex
	calls          []Call
	failures       map[string][]error
	lakes          map[string]*sltransport.DataLake
	createScript   map[string][]string
	updateScript   map[string][]string
	updateFailure  map[string]string
	sources        map[string]sltransport.LogSourceRef
	subscribers    map[string]*sltransport.Subscriber
	subscriberKeys map[string]sltransport.SubscriberInput
	nextID         int

	active        int32
	maxConcurrent int32
}

var _ sltransport.ControlPlane = &FakeControlPlane{}

// NewFakeControlPlane returns an empty fake for account and region.
func NewFakeControlPlane(account, region string) *FakeControlPlane {
	return &FakeControlPlane{
		Account:        account,
		Region:         region,
		failures:       make(map[string][]error),
		lakes:          make(map[string]*sltransport.DataLake),
		createScript:   make(map[string][]string),
		updateScript:   make(map[string][]string),
		updateFailure:  make(map[string]string),
		sources:        make(map[string]sltransport.LogSourceRef),
		subscribers:    make(map[string]*sltransport.Subscriber),
		subscriberKeys: make(map[string]sltransport.SubscriberInput),
	}
}

// FailNext queues errors returned by the next calls to method, in order.
func (f *FakeControlPlane) FailNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], errs...)
}

// ScriptCreateStatus sets the CreateStatus reported by successive describes
// of the lake in region. The last status sticks.
func (f *FakeControlPlane) ScriptCreateStatus(region string, statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createScript[region] = statuses
}

// ScriptUpdateStatus sets the UpdateStatus reported by successive describes.
// A FAILED status carries reason.
func (f *FakeControlPlane) ScriptUpdateStatus(region, reason string, statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateScript[region] = statuses
	f.updateFailure[region] = reason
}

// SeedLake adds an existing, completed lake.
func (f *FakeControlPlane) SeedLake(region string) *sltransport.DataLake {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLake(region, sltransport.StatusCompleted)
}

// SeedLogSource adds an already enabled log source.
func (f *FakeControlPlane) SeedLogSource(ref sltransport.LogSourceRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[sourceKey(ref)] = ref
}

// Calls returns the recorded calls in order.
func (f *FakeControlPlane) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls to method.
func (f *FakeControlPlane) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// MaxConcurrent returns the highest number of overlapping calls observed.
func (f *FakeControlPlane) MaxConcurrent() int {
	return int(atomic.LoadInt32(&f.maxConcurrent))
}

// Lake returns the stored lake for region.
func (f *FakeControlPlane) Lake(region string) (sltransport.DataLake, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lakes[region]
	if !ok {
		return sltransport.DataLake{}, false
	}
	return *l, true
}

// Subscriber returns the stored subscriber.
func (f *FakeControlPlane) Subscriber(id string) (sltransport.Subscriber, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscribers[id]
	if !ok {
		return sltransport.Subscriber{}, false
	}
	return *s, true
}

// SubscriberInput returns the input a subscriber was created with.
func (f *FakeControlPlane) SubscriberInput(id string) (sltransport.SubscriberInput, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.subscriberKeys[id]
	return in, ok
}

// enter records the call and returns the queued or intercepted failure.
func (f *FakeControlPlane) enter(ctx context.Context, method, detail string, in any) error {
	n := atomic.AddInt32(&f.active, 1)
	for {
		peak := atomic.LoadInt32(&f.maxConcurrent)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxConcurrent, peak, n) {
			break
		}
	}
	if f.CallDelay > 0 {
		time.Sleep(f.CallDelay)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Detail: detail, Seq: len(f.calls) + 1})
	var queued error
	if errs := f.failures[method]; len(errs) > 0 {
		queued, f.failures[method] = errs[0], errs[1:]
	}
	intercept := f.Intercept
	f.mu.Unlock()

	if queued != nil {
		return queued
	}
	if intercept != nil {
		return intercept(method, in)
	}
	return nil
}

func (f *FakeControlPlane) exit() {
	atomic.AddInt32(&f.active, -1)
}

func (f *FakeControlPlane) addLake(region, status string) *sltransport.DataLake {
	l := &sltransport.DataLake{
		Arn:          fmt.Sprintf("arn:aws:securitylake:%s:%s:data-lake/default", region, f.Account),
		Region:       region,
		S3BucketArn:  fmt.Sprintf("arn:aws:s3:::aws-security-data-lake-%s-fake", region),
		CreateStatus: status,
	}
	f.lakes[region] = l
	return l
}

func (f *FakeControlPlane) CreateDataLake(ctx context.Context, in sltransport.DataLakeInput) (*sltransport.DataLake, error) {
	defer f.exit()
	if err := f.enter(ctx, "CreateDataLake", in.Region, in); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.lakes[in.Region]; exists {
		return nil, sltransport.NewError(sltransport.ErrorCodeConflict, "data lake already exists in "+in.Region, nil)
	}
	l := f.addLake(in.Region, sltransport.StatusInitialized)
	out := *l
	return &out, nil
}

func (f *FakeControlPlane) UpdateDataLake(ctx context.Context, in sltransport.DataLakeInput) (*sltransport.DataLake, error) {
	defer f.exit()
	if err := f.enter(ctx, "UpdateDataLake", in.Region, in); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lakes[in.Region]
	if !ok {
		return nil, sltransport.NewError(sltransport.ErrorCodeResourceNotFound, "no data lake in "+in.Region, nil)
	}
	l.UpdateStatus = sltransport.StatusInitialized
	out := *l
	return &out, nil
}

func (f *FakeControlPlane) ListDataLakes(ctx context.Context, regions []string) ([]sltransport.DataLake, error) {
	defer f.exit()
	if err := f.enter(ctx, "ListDataLakes", fmt.Sprint(regions), regions); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []sltransport.DataLake
	for _, region := range f.regions(regions) {
		l, ok := f.lakes[region]
		if !ok {
			continue
		}
		l.CreateStatus = advance(f.createScript, region, l.CreateStatus)
		if l.UpdateStatus != "" {
			l.UpdateStatus = advance(f.updateScript, region, l.UpdateStatus)
			if l.UpdateStatus == sltransport.StatusFailed {
				l.UpdateFailure = f.updateFailure[region]
			}
		}
		out = append(out, *l)
	}
	return out, nil
}

// advance pops the next scripted status, or completes an in-progress one.
func advance(script map[string][]string, region, current string) string {
	if next := script[region]; len(next) > 0 {
		status := next[0]
		if len(next) > 1 {
			script[region] = next[1:]
		}
		return status
	}
	if current == sltransport.StatusInitialized || current == sltransport.StatusPending {
		return sltransport.StatusCompleted
	}
	return current
}

func (f *FakeControlPlane) regions(regions []string) []string {
	if len(regions) > 0 {
		return regions
	}
	all := make([]string, 0, len(f.lakes))
	for r := range f.lakes {
		all = append(all, r)
	}
	sort.Strings(all)
	return all
}

func (f *FakeControlPlane) DeleteDataLake(ctx context.Context, regions []string) error {
	defer f.exit()
	if err := f.enter(ctx, "DeleteDataLake", fmt.Sprint(regions), regions); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range regions {
		if _, ok := f.lakes[r]; !ok {
			return sltransport.NewError(sltransport.ErrorCodeResourceNotFound, "no data lake in "+r, nil)
		}
		delete(f.lakes, r)
	}
	return nil
}

func (f *FakeControlPlane) CreateAwsLogSource(ctx context.Context, in sltransport.LogSourceInput) error {
	defer f.exit()
	if err := f.enter(ctx, "CreateAwsLogSource", in.SourceName+":"+in.SourceVersion, in); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range f.expand(in) {
		f.sources[sourceKey(ref)] = ref
	}
	return nil
}

func (f *FakeControlPlane) DeleteAwsLogSource(ctx context.Context, in sltransport.LogSourceInput) error {
	defer f.exit()
	if err := f.enter(ctx, "DeleteAwsLogSource", in.SourceName+":"+in.SourceVersion, in); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range f.expand(in) {
		delete(f.sources, sourceKey(ref))
	}
	return nil
}

func (f *FakeControlPlane) expand(in sltransport.LogSourceInput) []sltransport.LogSourceRef {
	accounts := in.Accounts
	if len(accounts) == 0 {
		accounts = []string{f.Account}
	}
	regions := in.Regions
	if len(regions) == 0 {
		regions = []string{f.Region}
	}
	var refs []sltransport.LogSourceRef
	for _, a := range accounts {
		for _, r := range regions {
			refs = append(refs, sltransport.LogSourceRef{
				Account: a, Region: r, SourceName: in.SourceName, SourceVersion: in.SourceVersion,
			})
		}
	}
	return refs
}

func sourceKey(ref sltransport.LogSourceRef) string {
	return ref.Account + "/" + ref.Region + "/" + ref.SourceName + ":" + ref.SourceVersion
}

func (f *FakeControlPlane) ListLogSources(ctx context.Context, regions []string) ([]sltransport.LogSourceRef, error) {
	defer f.exit()
	if err := f.enter(ctx, "ListLogSources", fmt.Sprint(regions), regions); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	wanted := make(map[string]bool, len(regions))
	for _, r := range regions {
		wanted[r] = true
	}
	var out []sltransport.LogSourceRef
	for _, ref := range f.sources {
		if len(regions) == 0 || wanted[ref.Region] {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return sourceKey(out[i]) < sourceKey(out[j]) })
	return out, nil
}

func (f *FakeControlPlane) CreateSubscriber(ctx context.Context, in sltransport.SubscriberInput) (*sltransport.Subscriber, error) {
	defer f.exit()
	if err := f.enter(ctx, "CreateSubscriber", in.Principal, in); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("sub-%04d", f.nextID)
	sub := &sltransport.Subscriber{
		ID:          id,
		Arn:         fmt.Sprintf("arn:aws:securitylake:%s:%s:subscriber/%s", f.Region, f.Account, id),
		Name:        in.Name,
		Description: in.Description,
		Principal:   in.Principal,
		Status:      "ACTIVE",
		AccessTypes: append([]string(nil), in.AccessTypes...),
		Sources:     append([]sltransport.LogSourceRef(nil), in.Sources...),
	}
	for _, t := range in.AccessTypes {
		if t == "LAKEFORMATION" {
			sub.ResourceShareArn = fmt.Sprintf("arn:aws:ram:%s:%s:resource-share/%s", f.Region, f.Account, id)
		}
	}
	f.subscribers[id] = sub
	f.subscriberKeys[id] = in
	out := *sub
	return &out, nil
}

func (f *FakeControlPlane) GetSubscriber(ctx context.Context, id string) (*sltransport.Subscriber, error) {
	defer f.exit()
	if err := f.enter(ctx, "GetSubscriber", id, id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscribers[id]
	if !ok {
		return nil, sltransport.NewError(sltransport.ErrorCodeResourceNotFound, "subscriber "+id+" not found", nil)
	}
	out := *sub
	return &out, nil
}

func (f *FakeControlPlane) DeleteSubscriber(ctx context.Context, id string) error {
	defer f.exit()
	if err := f.enter(ctx, "DeleteSubscriber", id, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscribers[id]; !ok {
		return sltransport.NewError(sltransport.ErrorCodeResourceNotFound, "subscriber "+id+" not found", nil)
	}
	delete(f.subscribers, id)
	delete(f.subscriberKeys, id)
	return nil
}

func (f *FakeControlPlane) ListSubscribers(ctx context.Context) ([]sltransport.Subscriber, error) {
	defer f.exit()
	if err := f.enter(ctx, "ListSubscribers", "", nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sltransport.Subscriber, 0, len(f.subscribers))
	for _, s := range f.subscribers {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Throttled returns a retryable control plane error.
func Throttled() error {
	return sltransport.NewError(sltransport.ErrorCodeThrottling, "rate exceeded", nil)
}

// Rejected returns a permanent control plane error.
func Rejected(msg string) error {
	return sltransport.NewError(sltransport.ErrorCodeInvalidInput, msg, nil)
}
