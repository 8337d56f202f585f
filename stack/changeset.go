package stack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/sandeepkandula/sitedeploy/poll"
)

// Params are the template parameters of the site stack.
type Params struct {
	ProjectName          string
	BucketName           string
	AllowedOrigins       string
	RootHosts            string
	PreviewHosts         string
	CacheCorsPathPattern string
	CertificateARN       string
	LambdaVersion        string
}

func (p Params) parameters() []types.Parameter {
	kv := [][2]string{
		{"ProjectName", p.ProjectName},
		{"S3BucketName", p.BucketName},
		{"S3AllowedOrigins", p.AllowedOrigins},
		{"RootCloudFrontHosts", p.RootHosts},
		{"PreviewCloudFrontHosts", p.PreviewHosts},
		{"CacheCorsPathPattern", p.CacheCorsPathPattern},
		{"CertificateARN", p.CertificateARN},
		{"LambdaVersion", p.LambdaVersion},
	}
	params := make([]types.Parameter, 0, len(kv))
	for _, e := range kv {
		params = append(params, types.Parameter{
			ParameterKey:   aws.String(e[0]),
			ParameterValue: aws.String(e[1]),
		})
	}
	return params
}

// Change is one resource change proposed by a change set.
type Change struct {
	ResourceType string
	LogicalID    string
	Action       string
	Replacement  string
}

// Plan is a created change set awaiting execution.
type Plan struct {
	ChangeSetID string
	Type        types.ChangeSetType
	Changes     []Change
}

// Plan creates a change set for params. A stack left in ROLLBACK_COMPLETE
// cannot be updated, so it is deleted first and the change set creates it
// again. A change set with nothing to change is deleted and returned with no
// changes.
func (m *Manager) Plan(ctx context.Context, params Params) (*Plan, error) {
	if m.template == "" {
		return nil, ErrNoTemplate
	}
	csType, err := m.changeSetType(ctx)
	if err != nil {
		return nil, err
	}

	slog.Debug("creating change set", "stack", m.name, "type", csType, "parameters", params)
	out, err := m.client.CreateChangeSet(ctx, &cloudformation.CreateChangeSetInput{
		StackName:     aws.String(m.name),
		ChangeSetName: aws.String(fmt.Sprintf("sitedeploy-%d", m.now().UnixMilli())),
		ChangeSetType: csType,
		TemplateBody:  aws.String(m.template),
		Parameters:    params.parameters(),
		Capabilities:  []types.Capability{types.CapabilityCapabilityIam},
	})
	if err != nil {
		return nil, fmt.Errorf("create change set: %w", err)
	}
	id := aws.ToString(out.Id)
	if id == "" {
		return nil, fmt.Errorf("create change set for %s: no id returned", m.name)
	}

	slog.Info("generating list of changes", "stack", m.name)
	changes, err := m.describeChangeSet(ctx, id)
	if err != nil {
		return nil, err
	}
	plan := &Plan{ChangeSetID: id, Type: csType, Changes: changes}

	if len(changes) == 0 {
		slog.Info("no stack changes", "stack", m.name)
		if _, err := m.client.DeleteChangeSet(ctx, &cloudformation.DeleteChangeSetInput{
			StackName:     aws.String(m.name),
			ChangeSetName: aws.String(id),
		}); err != nil {
			return nil, fmt.Errorf("delete empty change set: %w", err)
		}
		plan.ChangeSetID = ""
	}
	return plan, nil
}

// Apply executes plan and waits for the stack to settle.
func (m *Manager) Apply(ctx context.Context, plan *Plan) error {
	if plan.ChangeSetID == "" {
		return nil
	}

	slog.Info("executing change set, this can take a while", "stack", m.name, "changes", len(plan.Changes))
	if _, err := m.client.ExecuteChangeSet(ctx, &cloudformation.ExecuteChangeSetInput{
		StackName:     aws.String(m.name),
		ChangeSetName: aws.String(plan.ChangeSetID),
	}); err != nil {
		return fmt.Errorf("execute change set: %w", err)
	}

	status, err := m.WaitForCompleteOrFailed(ctx)
	if err != nil {
		return err
	}
	if status != types.StackStatusCreateComplete && status != types.StackStatusUpdateComplete {
		return fmt.Errorf("%w: %s ended in %s", ErrStackFailed, m.name, status)
	}
	slog.Info("stack applied", "stack", m.name, "status", status)
	return nil
}

func (m *Manager) changeSetType(ctx context.Context) (types.ChangeSetType, error) {
	exists, err := m.Exists(ctx)
	if err != nil {
		return "", err
	}
	slog.Debug("found existing stack", "stack", m.name, "exists", exists)
	if !exists {
		return types.ChangeSetTypeCreate, nil
	}

	s, err := m.Describe(ctx)
	if err != nil {
		return "", err
	}
	switch s.StackStatus {
	case types.StackStatusRollbackComplete:
		slog.Warn("deleting existing stack due to ROLLBACK_COMPLETE status", "stack", m.name)
		if err := m.Delete(ctx); err != nil {
			return "", err
		}
		return types.ChangeSetTypeCreate, nil
	case types.StackStatusReviewInProgress:
		// created by a change set that was never executed
		return types.ChangeSetTypeCreate, nil
	}
	return types.ChangeSetTypeUpdate, nil
}

func (m *Manager) describeChangeSet(ctx context.Context, id string) ([]Change, error) {
	var (
		reason string
		failed bool
	)
	check := func(ctx context.Context) (string, bool, error) {
		out, err := m.client.DescribeChangeSet(ctx, &cloudformation.DescribeChangeSetInput{
			StackName:     aws.String(m.name),
			ChangeSetName: aws.String(id),
		})
		if err != nil {
			return "", false, fmt.Errorf("describe change set: %w", err)
		}
		switch out.Status {
		case types.ChangeSetStatusCreateComplete:
			return string(out.Status), true, nil
		case types.ChangeSetStatusFailed:
			failed, reason = true, aws.ToString(out.StatusReason)
			return string(out.Status), true, nil
		}
		return string(out.Status), false, nil
	}
	onNew := func(status string) { slog.Info("change set status", "status", status) }
	if _, err := poll.Until(ctx, m.poll, check, onNew); err != nil {
		return nil, err
	}

	if failed {
		if !isNoChanges(reason) {
			return nil, fmt.Errorf("%w: change set failed: %s", ErrStackFailed, reason)
		}
		slog.Debug("change set failed", "reason", reason)
		return nil, nil
	}

	var (
		changes []Change
		next    *string
	)
	for {
		out, err := m.client.DescribeChangeSet(ctx, &cloudformation.DescribeChangeSetInput{
			StackName:     aws.String(m.name),
			ChangeSetName: aws.String(id),
			NextToken:     next,
		})
		if err != nil {
			return nil, fmt.Errorf("describe change set: %w", err)
		}
		for _, c := range out.Changes {
			if rc := c.ResourceChange; rc != nil {
				changes = append(changes, Change{
					ResourceType: aws.ToString(rc.ResourceType),
					LogicalID:    aws.ToString(rc.LogicalResourceId),
					Action:       string(rc.Action),
					Replacement:  string(rc.Replacement),
				})
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return changes, nil
		}
		next = out.NextToken
	}
}

func isNoChanges(reason string) bool {
	return strings.Contains(reason, "didn't contain changes") ||
		strings.Contains(reason, "No updates are to be performed")
}
