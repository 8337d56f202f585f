package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	return cmd.ExecuteContext(context.Background())
}

func TestPreviewRejectsInvalidBranch(t *testing.T) {
	err := runCmd(t, "deploy", "preview", "--branch", "../root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid branch id")
}

func TestPreviewRequiresBranch(t *testing.T) {
	err := runCmd(t, "deploy", "preview")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch")
}

func TestTeardownRejectsInvalidBranch(t *testing.T) {
	err := runCmd(t, "teardown", "preview", "--branch", "Feature_X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid branch id")
}

func TestStackValidatesConfig(t *testing.T) {
	t.Setenv("SITEDEPLOY_STACK_NAME", "")
	err := runCmd(t, "stack", "--bucket", "site-bucket")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stack_name is required")
	assert.NotContains(t, err.Error(), "s3_bucket_name is required")
}

func TestBindFlags(t *testing.T) {
	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("bucket", "", "")
	flags.Int("concurrency", 8, "")
	require.NoError(t, flags.Parse([]string{"--bucket", "b", "--concurrency", "3"}))

	require.NoError(t, bindFlags(v, flags))
	assert.Equal(t, "b", v.GetString("s3_bucket_name"))
	assert.Equal(t, 3, v.GetInt("concurrency"))
	assert.False(t, v.IsSet("out_dir"))
}
