// Package stack creates and updates the CloudFormation stack that owns the
// site bucket, distributions and certificate binding.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/sandeepkandula/sitedeploy/poll"
)

var (
	ErrStackNotFound  = errors.New("stack not found")
	ErrOutputNotFound = errors.New("stack output not found")
	ErrStackFailed    = errors.New("stack operation failed")
	ErrNoTemplate     = errors.New("stack template is empty")
)

// Stack outputs holding the distribution ids.
const (
	OutputRootDistribution    = "CFDistributionId"
	OutputPreviewDistribution = "CFDistributionPreviewId"
)

var terminalStatuses = []types.StackStatus{
	types.StackStatusCreateComplete,
	types.StackStatusCreateFailed,
	types.StackStatusDeleteComplete,
	types.StackStatusDeleteFailed,
	types.StackStatusImportComplete,
	types.StackStatusImportRollbackComplete,
	types.StackStatusImportRollbackFailed,
	types.StackStatusRollbackComplete,
	types.StackStatusRollbackFailed,
	types.StackStatusUpdateComplete,
	types.StackStatusUpdateFailed,
	types.StackStatusUpdateRollbackComplete,
	types.StackStatusUpdateRollbackFailed,
}

// API is the subset of the CloudFormation client used here.
type API interface {
	cloudformation.ListStacksAPIClient
	cloudformation.DescribeStacksAPIClient
	cloudformation.DescribeChangeSetAPIClient
	CreateChangeSet(ctx context.Context, params *cloudformation.CreateChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateChangeSetOutput, error)
	ExecuteChangeSet(ctx context.Context, params *cloudformation.ExecuteChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ExecuteChangeSetOutput, error)
	DeleteChangeSet(ctx context.Context, params *cloudformation.DeleteChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteChangeSetOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

// Manager drives a single named stack.
type Manager struct {
	client   API
	name     string
	template string
	poll     poll.Options
	now      func() time.Time
}

func NewManager(client API, name, templateBody string, opts poll.Options) *Manager {
	return &Manager{
		client:   client,
		name:     name,
		template: templateBody,
		poll:     opts,
		now:      time.Now,
	}
}

func (m *Manager) Name() string { return m.name }

// Exists reports whether a stack with this name exists and is not deleted.
func (m *Manager) Exists(ctx context.Context) (bool, error) {
	paginator := cloudformation.NewListStacksPaginator(m.client, &cloudformation.ListStacksInput{})
	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("list stacks: %w", err)
		}
		for _, s := range page.StackSummaries {
			count++
			if aws.ToString(s.StackName) == m.name && s.StackStatus != types.StackStatusDeleteComplete {
				return true, nil
			}
		}
	}
	slog.Debug("stack lookup", "stack", m.name, "scanned", count)
	return false, nil
}

// Describe returns the current stack, or ErrStackNotFound.
func (m *Manager) Describe(ctx context.Context) (*types.Stack, error) {
	out, err := m.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(m.name),
	})
	if err != nil {
		if isStackMissing(err) {
			return nil, fmt.Errorf("%s: %w", m.name, ErrStackNotFound)
		}
		return nil, fmt.Errorf("describe stack %s: %w", m.name, err)
	}
	if len(out.Stacks) == 0 {
		return nil, fmt.Errorf("%s: %w", m.name, ErrStackNotFound)
	}
	return &out.Stacks[0], nil
}

// Output returns the value of the named stack output.
func (m *Manager) Output(ctx context.Context, key string) (string, error) {
	s, err := m.Describe(ctx)
	if err != nil {
		return "", err
	}
	for _, o := range s.Outputs {
		if aws.ToString(o.OutputKey) == key && aws.ToString(o.OutputValue) != "" {
			return aws.ToString(o.OutputValue), nil
		}
	}
	return "", fmt.Errorf("%s: %w", key, ErrOutputNotFound)
}

// WaitForCompleteOrFailed blocks until the stack reaches a terminal status.
func (m *Manager) WaitForCompleteOrFailed(ctx context.Context) (types.StackStatus, error) {
	return m.waitFor(ctx, func(s types.StackStatus) bool {
		return slices.Contains(terminalStatuses, s)
	})
}

// Delete removes the stack and waits for DELETE_COMPLETE.
func (m *Manager) Delete(ctx context.Context) error {
	if _, err := m.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(m.name),
	}); err != nil {
		return fmt.Errorf("delete stack %s: %w", m.name, err)
	}
	status, err := m.waitFor(ctx, func(s types.StackStatus) bool {
		return s == types.StackStatusDeleteComplete || s == types.StackStatusDeleteFailed
	})
	if err != nil {
		return err
	}
	if status != types.StackStatusDeleteComplete {
		return fmt.Errorf("%w: delete %s ended in %s", ErrStackFailed, m.name, status)
	}
	slog.Info("stack deleted", "stack", m.name)
	return nil
}

func (m *Manager) waitFor(ctx context.Context, done func(types.StackStatus) bool) (types.StackStatus, error) {
	check := func(ctx context.Context) (string, bool, error) {
		s, err := m.Describe(ctx)
		if errors.Is(err, ErrStackNotFound) {
			// deleted stacks stop being addressable by name
			status := types.StackStatusDeleteComplete
			return string(status), done(status), nil
		}
		if err != nil {
			return "", false, err
		}
		return string(s.StackStatus), done(s.StackStatus), nil
	}
	status, err := poll.Until(ctx, m.poll, check, logStackStatus)
	return types.StackStatus(status), err
}

func logStackStatus(status string) {
	if status == string(types.StackStatusRollbackInProgress) {
		slog.Warn("ROLLBACK_IN_PROGRESS detected, check the CloudFormation events in the AWS console. " +
			"Rollback can take a while; the stack can be deleted manually or left to finish.")
	}
	slog.Info("stack status", "status", status)
}

func isStackMissing(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) &&
		apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "does not exist")
}
