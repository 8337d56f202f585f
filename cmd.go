package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sandeepkandula/sitedeploy/cdn"
	"github.com/sandeepkandula/sitedeploy/comment"
	"github.com/sandeepkandula/sitedeploy/config"
	"github.com/sandeepkandula/sitedeploy/deploy"
	"github.com/sandeepkandula/sitedeploy/poll"
	"github.com/sandeepkandula/sitedeploy/stack"
	"github.com/sandeepkandula/sitedeploy/sync"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"stack-name":       "stack_name",
	"template":         "template_path",
	"region":           "region",
	"bucket":           "s3_bucket_name",
	"out-dir":          "out_dir",
	"strip-html":       "remove_extension_from_html_files",
	"exclude":          "exclude",
	"concurrency":      "concurrency",
	"dry-run":          "dry_run",
	"prune":            "prune",
	"execute":          "execute_stack_change_set",
	"poll-interval":    "poll_interval",
	"poll-attempts":    "poll_max_attempts",
	"pr":               "pr_number",
	"repository":       "github_repository",
	"preview-url-host": "preview_url_host",
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:           "sitedeploy",
		Short:         "Deploy a static site to S3 and CloudFront",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level.Set(slog.LevelDebug)
			}
			if err := bindFlags(a.v, cmd.Flags()); err != nil {
				return err
			}
			configFile, _ := cmd.Flags().GetString("config")
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.Load(a.v, configFile, envFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "config file (yaml, json or toml)")
	pf.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pf.BoolP("verbose", "v", false, "enable debug logging")
	pf.String("stack-name", "", "CloudFormation stack name")
	pf.String("template", config.DefaultTemplatePath, "CloudFormation template file")
	pf.String("region", config.DefaultRegion, "AWS region")
	pf.String("bucket", "", "S3 bucket name")
	pf.Bool("execute", false, "execute the stack change set")
	pf.Duration("poll-interval", 0, "interval between status checks")
	pf.Int("poll-attempts", 0, "status checks before giving up")
	pf.Int("pr", 0, "pull request number to comment on")
	pf.String("repository", "", "GitHub repository as owner/repo")
	pf.Bool("dry-run", false, "log actions without making changes")

	root.AddCommand(a.stackCmd(), a.deployCmd(), a.teardownCmd())
	return root
}

func (a *app) stackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stack",
		Short: "Plan the stack change set and optionally execute it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateStack(); err != nil {
				return err
			}
			d, err := a.deployer(cmd.Context())
			if err != nil {
				return err
			}
			_, err = d.ApplyStack(cmd.Context())
			return err
		},
	}
}

func (a *app) deployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Sync the build output and invalidate the CDN",
	}
	flags := cmd.PersistentFlags()
	flags.String("out-dir", "", "build output directory")
	flags.Bool("strip-html", false, "store .html files without their extension")
	flags.StringSlice("exclude", config.DefaultExclude, "glob of files to skip, may be repeated")
	flags.Int("concurrency", sync.DefaultConcurrency, "files synced in parallel")
	flags.Bool("prune", false, "delete objects absent from the build output")
	flags.Bool("stack", false, "plan (and with --execute apply) the stack first")

	root := &cobra.Command{
		Use:   "root",
		Short: "Deploy the production site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.deployerForSync(cmd)
			if err != nil {
				return err
			}
			if withStack, _ := cmd.Flags().GetBool("stack"); withStack {
				if _, err := d.ApplyStack(cmd.Context()); err != nil {
					return err
				}
			}
			return d.DeployRoot(cmd.Context())
		},
	}

	preview := &cobra.Command{
		Use:   "preview",
		Short: "Deploy a branch preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			branch, _ := cmd.Flags().GetString("branch")
			if err := config.ValidateBranch(branch); err != nil {
				return err
			}
			if a.cfg.PreviewURLHost == "" {
				return fmt.Errorf("preview_url_host is required")
			}
			d, err := a.deployerForSync(cmd)
			if err != nil {
				return err
			}
			var res *deploy.StackResult
			if withStack, _ := cmd.Flags().GetBool("stack"); withStack {
				if res, err = d.ApplyStack(cmd.Context()); err != nil {
					return err
				}
			}
			return d.DeployPreview(cmd.Context(), branch, res)
		},
	}
	preview.Flags().String("branch", "", "preview id, used as subdomain and key prefix")
	preview.Flags().String("preview-url-host", "", "host the preview subdomain is added to")
	_ = preview.MarkFlagRequired("branch")

	cmd.AddCommand(root, preview)
	return cmd
}

func (a *app) teardownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Remove deployed content",
	}
	preview := &cobra.Command{
		Use:   "preview",
		Short: "Remove a branch preview and its pull request comment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			branch, _ := cmd.Flags().GetString("branch")
			if err := config.ValidateBranch(branch); err != nil {
				return err
			}
			if a.cfg.BucketName == "" {
				return fmt.Errorf("s3_bucket_name is required")
			}
			d, err := a.deployer(cmd.Context())
			if err != nil {
				return err
			}
			return d.TeardownPreview(cmd.Context(), branch)
		},
	}
	preview.Flags().String("branch", "", "preview id to remove")
	_ = preview.MarkFlagRequired("branch")
	cmd.AddCommand(preview)
	return cmd
}

func (a *app) deployerForSync(cmd *cobra.Command) (*deploy.Deployer, error) {
	if withStack, _ := cmd.Flags().GetBool("stack"); withStack {
		if err := a.cfg.ValidateStack(); err != nil {
			return nil, err
		}
	}
	if err := a.cfg.ValidateDeploy(); err != nil {
		return nil, err
	}
	return a.deployer(cmd.Context())
}

// deployer builds the AWS and GitHub clients for the loaded config.
func (a *app) deployer(ctx context.Context) (*deploy.Deployer, error) {
	cfg := a.cfg
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	// the template is only needed to plan; a missing file fails there
	template, err := os.ReadFile(cfg.TemplatePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read template: %w", err)
	}

	pollOpts := poll.Options{Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts}
	st := stack.NewManager(cloudformation.NewFromConfig(awsCfg), cfg.StackName, string(template), pollOpts)
	inv := cdn.NewInvalidator(cloudfront.NewFromConfig(awsCfg), pollOpts)
	dst := sync.NewS3Destination(s3.NewFromConfig(awsCfg), cfg.BucketName)

	var comments deploy.Commenter
	if cfg.HasPullRequest() {
		comments = comment.NewClient(cfg.GitHubToken, comment.PullRequest{
			Owner:  cfg.Owner(),
			Repo:   cfg.Repo(),
			Number: cfg.PRNumber,
		})
	} else {
		slog.Debug("no pull request configured, comments disabled")
	}

	return deploy.New(cfg, dst, st, inv, comments), nil
}

// bindFlags binds the flags that are present on the running command to
// their config keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}
