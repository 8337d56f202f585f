// Package config holds the deployment settings shared by every command.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/sandeepkandula/sitedeploy/poll"
	"github.com/sandeepkandula/sitedeploy/sync"
	"github.com/spf13/viper"
)

const EnvPrefix = "SITEDEPLOY"

var (
	DefaultRegion       = "us-east-1"
	DefaultTemplatePath = filepath.Join("cloudformation", "s3bucket_with_cloudfront.yml")
	DefaultExclude      = []string{"**/.DS_Store"}
)

var branchPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

type Config struct {
	// stack
	StackName            string `mapstructure:"stack_name"`
	TemplatePath         string `mapstructure:"template_path"`
	AllowedOrigins       string `mapstructure:"s3_allowed_origins"`
	RootHosts            string `mapstructure:"root_cloudfront_hosts"`
	PreviewHosts         string `mapstructure:"preview_cloudfront_hosts"`
	CacheCorsPathPattern string `mapstructure:"cache_cors_path_pattern"`
	CertificateARN       string `mapstructure:"certificate_arn"`
	LambdaVersion        string `mapstructure:"lambda_version"`
	ExecuteChangeSet     bool   `mapstructure:"execute_stack_change_set"`

	// storage and sync
	Region      string   `mapstructure:"region"`
	BucketName  string   `mapstructure:"s3_bucket_name"`
	OutDir      string   `mapstructure:"out_dir"`
	StripHTML   bool     `mapstructure:"remove_extension_from_html_files"`
	Exclude     []string `mapstructure:"exclude"`
	Concurrency int      `mapstructure:"concurrency"`
	DryRun      bool     `mapstructure:"dry_run"`
	Prune       bool     `mapstructure:"prune"`

	// polling
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollMaxAttempts int           `mapstructure:"poll_max_attempts"`

	// pull request
	GitHubToken    string `mapstructure:"github_token"`
	Repository     string `mapstructure:"github_repository"`
	PRNumber       int    `mapstructure:"pr_number"`
	PreviewURLHost string `mapstructure:"preview_url_host"`
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("region", DefaultRegion)
	v.SetDefault("template_path", DefaultTemplatePath)
	v.SetDefault("exclude", DefaultExclude)
	v.SetDefault("concurrency", sync.DefaultConcurrency)
	v.SetDefault("poll_interval", poll.DefaultInterval)
	v.SetDefault("poll_max_attempts", poll.DefaultMaxAttempts)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows about
	for _, key := range keys() {
		_ = v.BindEnv(key)
	}
	// GitHub Actions provides these without our prefix
	_ = v.BindEnv("github_token", EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("github_repository", EnvPrefix+"_GITHUB_REPOSITORY", "GITHUB_REPOSITORY")
}

// Load reads an optional .env file and config file into v and decodes the result.
func Load(v *viper.Viper, configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Owner returns the owner half of Repository ("owner/repo").
func (c *Config) Owner() string {
	owner, _, _ := strings.Cut(c.Repository, "/")
	return owner
}

// Repo returns the repository half of Repository.
func (c *Config) Repo() string {
	_, repo, _ := strings.Cut(c.Repository, "/")
	return repo
}

// HasPullRequest reports whether comments can be posted.
func (c *Config) HasPullRequest() bool {
	return c.GitHubToken != "" && c.PRNumber > 0 && c.Owner() != "" && c.Repo() != ""
}

// PreviewURL is the public URL of a branch preview.
func (c *Config) PreviewURL(branch string) string {
	return fmt.Sprintf("https://%s.%s", branch, c.PreviewURLHost)
}

// ValidateStack checks the settings needed to plan or apply the stack.
func (c *Config) ValidateStack() error {
	var errs *multierror.Error
	errs = multierror.Append(errs, required(map[string]string{
		"stack_name":               c.StackName,
		"s3_bucket_name":           c.BucketName,
		"template_path":            c.TemplatePath,
		"s3_allowed_origins":       c.AllowedOrigins,
		"root_cloudfront_hosts":    c.RootHosts,
		"preview_cloudfront_hosts": c.PreviewHosts,
		"cache_cors_path_pattern":  c.CacheCorsPathPattern,
		"certificate_arn":          c.CertificateARN,
		"lambda_version":           c.LambdaVersion,
	})...)
	errs = multierror.Append(errs, c.validatePolling()...)
	return errs.ErrorOrNil()
}

// ValidateDeploy checks the settings needed to sync and invalidate.
func (c *Config) ValidateDeploy() error {
	var errs *multierror.Error
	errs = multierror.Append(errs, required(map[string]string{
		"stack_name":     c.StackName,
		"s3_bucket_name": c.BucketName,
		"out_dir":        c.OutDir,
	})...)
	if c.Concurrency < 1 {
		errs = multierror.Append(errs, fmt.Errorf("concurrency must be at least 1"))
	}
	errs = multierror.Append(errs, c.validatePolling()...)

	if c.OutDir != "" {
		abs, err := filepath.Abs(c.OutDir)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("out_dir: %w", err))
		} else {
			c.OutDir = abs
		}
	}
	return errs.ErrorOrNil()
}

// ValidateBranch checks that branch can be used as a key prefix and a DNS label.
func ValidateBranch(branch string) error {
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("invalid branch id %q: must be a lowercase DNS label", branch)
	}
	return nil
}

func (c *Config) validatePolling() []error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive"))
	}
	if c.PollMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("poll_max_attempts must be at least 1"))
	}
	return errs
}

func keys() []string {
	t := reflect.TypeOf(Config{})
	keys := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		if tag := t.Field(i).Tag.Get("mapstructure"); tag != "" {
			keys = append(keys, tag)
		}
	}
	return keys
}

func required(fields map[string]string) []error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if strings.TrimSpace(fields[name]) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	return errs
}
