package cdn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/google/uuid"
	"github.com/sandeepkandula/sitedeploy/poll"
)

// StatusCompleted is the terminal CloudFront invalidation status.
const StatusCompleted = "Completed"

// ErrInvalidationSubmission is returned when CloudFront accepts an
// invalidation request without returning its id.
var ErrInvalidationSubmission = errors.New("invalidation request returned no id")

// API is the subset of the CloudFront client used for invalidations.
type API interface {
	cloudfront.GetInvalidationAPIClient
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

// Invalidator submits invalidation batches and waits for them to complete.
type Invalidator struct {
	client API
	poll   poll.Options
	newRef func() string
}

func NewInvalidator(client API, opts poll.Options) *Invalidator {
	return &Invalidator{
		client: client,
		poll:   opts,
		newRef: func() string { return "invalidate-paths-" + uuid.NewString() },
	}
}

// Invalidate purges paths from distributionID and blocks until CloudFront
// reports completion. It is a no-op for an empty path list.
func (i *Invalidator) Invalidate(ctx context.Context, distributionID string, paths []string) error {
	if len(paths) == 0 {
		slog.Info("no paths to invalidate")
		return nil
	}

	out, err := i.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(i.newRef()),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create invalidation: %w", err)
	}
	if out.Invalidation == nil || aws.ToString(out.Invalidation.Id) == "" {
		return ErrInvalidationSubmission
	}
	id := aws.ToString(out.Invalidation.Id)

	slog.Info("requested cloudfront cache invalidation, waiting", "distribution", distributionID, "id", id, "paths", len(paths))

	check := func(ctx context.Context) (string, bool, error) {
		res, err := i.client.GetInvalidation(ctx, &cloudfront.GetInvalidationInput{
			DistributionId: aws.String(distributionID),
			Id:             aws.String(id),
		})
		if err != nil {
			return "", false, fmt.Errorf("get invalidation %s: %w", id, err)
		}
		var status string
		if res.Invalidation != nil {
			status = aws.ToString(res.Invalidation.Status)
		}
		return status, status == StatusCompleted, nil
	}
	onNew := func(status string) {
		slog.Debug("invalidation status", "id", id, "status", status)
	}
	if _, err := poll.Until(ctx, i.poll, check, onNew); err != nil {
		return fmt.Errorf("wait for invalidation %s: %w", id, err)
	}

	slog.Info("invalidated cloudfront cache", "distribution", distributionID, "items", len(paths), "paths", paths)
	return nil
}
