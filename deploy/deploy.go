// Package deploy runs the root, preview and teardown flows against the site
// stack, bucket and distributions.
package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sandeepkandula/sitedeploy/cdn"
	"github.com/sandeepkandula/sitedeploy/config"
	"github.com/sandeepkandula/sitedeploy/stack"
	"github.com/sandeepkandula/sitedeploy/sync"
)

// Key prefixes for the two deployment targets.
const (
	RootPrefix    = "root"
	PreviewPrefix = "preview"
)

// Stack is the infrastructure stack collaborator.
type Stack interface {
	Output(ctx context.Context, key string) (string, error)
	Plan(ctx context.Context, params stack.Params) (*stack.Plan, error)
	Apply(ctx context.Context, plan *stack.Plan) error
}

// Invalidator purges CDN paths.
type Invalidator interface {
	Invalidate(ctx context.Context, distributionID string, paths []string) error
}

// Commenter posts deployment status to the pull request.
type Commenter interface {
	PostChangeSet(ctx context.Context, changes []stack.Change) error
	PostPreview(ctx context.Context, changes []stack.Change, previewURL string, stackApplied bool) error
	DeletePreview(ctx context.Context) error
}

// Deployer wires the collaborators of one run together.
type Deployer struct {
	cfg         *config.Config
	dst         sync.Destination
	stack       Stack
	invalidator Invalidator
	comments    Commenter // nil when not running for a pull request
}

func New(cfg *config.Config, dst sync.Destination, st Stack, inv Invalidator, comments Commenter) *Deployer {
	return &Deployer{
		cfg:         cfg,
		dst:         dst,
		stack:       st,
		invalidator: inv,
		comments:    comments,
	}
}

// StackResult describes what ApplyStack did.
type StackResult struct {
	Changes []stack.Change
	Applied bool
}

// ApplyStack plans the stack change set, reports it on the pull request and
// executes it when configured to.
func (d *Deployer) ApplyStack(ctx context.Context) (*StackResult, error) {
	plan, err := d.stack.Plan(ctx, stack.Params{
		ProjectName:          d.cfg.StackName,
		BucketName:           d.cfg.BucketName,
		AllowedOrigins:       d.cfg.AllowedOrigins,
		RootHosts:            d.cfg.RootHosts,
		PreviewHosts:         d.cfg.PreviewHosts,
		CacheCorsPathPattern: d.cfg.CacheCorsPathPattern,
		CertificateARN:       d.cfg.CertificateARN,
		LambdaVersion:        d.cfg.LambdaVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("plan stack: %w", err)
	}

	if d.comments != nil {
		if err := d.comments.PostChangeSet(ctx, plan.Changes); err != nil {
			return nil, fmt.Errorf("post change set comment: %w", err)
		}
	}

	res := &StackResult{Changes: plan.Changes}
	if !d.cfg.ExecuteChangeSet {
		slog.Info("change set not executed", "changes", len(plan.Changes))
		return res, nil
	}
	if err := d.stack.Apply(ctx, plan); err != nil {
		return nil, fmt.Errorf("apply stack: %w", err)
	}
	res.Applied = true
	return res, nil
}

// DeployRoot syncs the build to the root prefix and invalidates the root
// distribution.
func (d *Deployer) DeployRoot(ctx context.Context) error {
	return d.deploy(ctx, RootPrefix, stack.OutputRootDistribution)
}

// DeployPreview syncs the build to preview/<branch>, invalidates the preview
// distribution and posts the preview URL. res may be nil when the stack step
// did not run.
func (d *Deployer) DeployPreview(ctx context.Context, branch string, res *StackResult) error {
	if err := config.ValidateBranch(branch); err != nil {
		return err
	}
	if err := d.deploy(ctx, previewPrefix(branch), stack.OutputPreviewDistribution); err != nil {
		return err
	}

	url := d.cfg.PreviewURL(branch)
	slog.Info("preview site deployed", "url", url)
	if d.comments == nil || d.cfg.DryRun {
		return nil
	}
	if res == nil {
		res = &StackResult{}
	}
	if err := d.comments.PostPreview(ctx, res.Changes, url, res.Applied); err != nil {
		return fmt.Errorf("post preview comment: %w", err)
	}
	return nil
}

// TeardownPreview removes every object of a branch preview and its comment.
func (d *Deployer) TeardownPreview(ctx context.Context, branch string) error {
	if err := config.ValidateBranch(branch); err != nil {
		return err
	}
	prefix := previewPrefix(branch)

	if d.cfg.DryRun {
		slog.Info("dry run, preview not removed", "prefix", prefix)
		return nil
	}
	n, err := sync.Empty(ctx, d.dst, prefix)
	if err != nil {
		return fmt.Errorf("empty %s: %w", prefix, err)
	}
	slog.Info("preview removed", "prefix", prefix, "objects", n)

	if d.comments != nil {
		if err := d.comments.DeletePreview(ctx); err != nil {
			return fmt.Errorf("delete preview comment: %w", err)
		}
	}
	return nil
}

func (d *Deployer) deploy(ctx context.Context, prefix, distributionOutput string) error {
	distributionID, err := d.stack.Output(ctx, distributionOutput)
	if err != nil {
		return fmt.Errorf("distribution id: %w", err)
	}

	res, err := sync.Sync(ctx, sync.Options{
		Src:         d.cfg.OutDir,
		Dst:         d.dst,
		Prefix:      prefix,
		StripHTML:   d.cfg.StripHTML,
		Exclude:     d.cfg.Exclude,
		Concurrency: d.cfg.Concurrency,
		DryRun:      d.cfg.DryRun,
		Delete:      d.cfg.Prune,
	})
	if err != nil {
		return fmt.Errorf("sync %s: %w", prefix, err)
	}

	paths := cdn.DocumentPaths(res.Documents, prefix, PreviewPrefix, d.cfg.StripHTML)
	if d.cfg.DryRun {
		slog.Info("dry run, skipping invalidation", "distribution", distributionID, "paths", paths)
		return nil
	}
	return d.invalidator.Invalidate(ctx, distributionID, paths)
}

func previewPrefix(branch string) string {
	return PreviewPrefix + "/" + branch
}
