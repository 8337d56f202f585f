package cdn

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/sandeepkandula/sitedeploy/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudFront struct {
	created  []*cloudfront.CreateInvalidationInput
	noID     bool
	statuses []string
	gets     int
}

func (f *fakeCloudFront) CreateInvalidation(_ context.Context, in *cloudfront.CreateInvalidationInput, _ ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error) {
	f.created = append(f.created, in)
	if f.noID {
		return &cloudfront.CreateInvalidationOutput{}, nil
	}
	return &cloudfront.CreateInvalidationOutput{Invalidation: &types.Invalidation{Id: aws.String("I123")}}, nil
}

func (f *fakeCloudFront) GetInvalidation(_ context.Context, in *cloudfront.GetInvalidationInput, _ ...func(*cloudfront.Options)) (*cloudfront.GetInvalidationOutput, error) {
	status := f.statuses[min(f.gets, len(f.statuses)-1)]
	f.gets++
	return &cloudfront.GetInvalidationOutput{Invalidation: &types.Invalidation{Id: in.Id, Status: aws.String(status)}}, nil
}

var fastPoll = poll.Options{Interval: time.Millisecond, MaxAttempts: 10}

func TestInvalidate_emptyPathsMakesNoRequest(t *testing.T) {
	cf := &fakeCloudFront{}
	require.NoError(t, NewInvalidator(cf, fastPoll).Invalidate(context.Background(), "D1", nil))
	assert.Empty(t, cf.created)
}

func TestInvalidate_waitsForCompletion(t *testing.T) {
	cf := &fakeCloudFront{statuses: []string{"InProgress", "InProgress", StatusCompleted}}
	inv := NewInvalidator(cf, fastPoll)

	require.NoError(t, inv.Invalidate(context.Background(), "D1", []string{"/", "/index.html"}))

	require.Len(t, cf.created, 1)
	in := cf.created[0]
	assert.Equal(t, "D1", aws.ToString(in.DistributionId))
	assert.Equal(t, int32(2), aws.ToInt32(in.InvalidationBatch.Paths.Quantity))
	assert.Equal(t, []string{"/", "/index.html"}, in.InvalidationBatch.Paths.Items)
	assert.Contains(t, aws.ToString(in.InvalidationBatch.CallerReference), "invalidate-paths-")
	assert.Equal(t, 3, cf.gets)
}

func TestInvalidate_uniqueCallerReference(t *testing.T) {
	cf := &fakeCloudFront{statuses: []string{StatusCompleted}}
	inv := NewInvalidator(cf, fastPoll)

	require.NoError(t, inv.Invalidate(context.Background(), "D1", []string{"/a.html"}))
	require.NoError(t, inv.Invalidate(context.Background(), "D1", []string{"/a.html"}))

	require.Len(t, cf.created, 2)
	assert.NotEqual(t,
		aws.ToString(cf.created[0].InvalidationBatch.CallerReference),
		aws.ToString(cf.created[1].InvalidationBatch.CallerReference))
}

func TestInvalidate_missingID(t *testing.T) {
	cf := &fakeCloudFront{noID: true}
	err := NewInvalidator(cf, fastPoll).Invalidate(context.Background(), "D1", []string{"/"})
	assert.ErrorIs(t, err, ErrInvalidationSubmission)
}

func TestInvalidate_timeout(t *testing.T) {
	cf := &fakeCloudFront{statuses: []string{"InProgress"}}
	err := NewInvalidator(cf, poll.Options{Interval: time.Millisecond, MaxAttempts: 2}).
		Invalidate(context.Background(), "D1", []string{"/"})
	assert.ErrorIs(t, err, poll.ErrTimeout)
	assert.Equal(t, 2, cf.gets)
}
