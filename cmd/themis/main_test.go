package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Themis/pkg/node"
)

const signupJob = `{
  "nodeType": "yupValidation",
  "nodeName": "Check signup",
  "parameters": {
    "validations": {
      "validation": [
        {"fieldValue": "email", "validationSchema": "string().email().required()"}
      ]
    }
  },
  "items": [
    {"json": {"email": "ada@example.com"}},
    {"json": {"email": "nope"}}
  ]
}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)
	require.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	require.Equal(t, "THEMIS_JOBS", cfg.Stream)
	require.Equal(t, "themis-workers", cfg.Consumer)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, 30*time.Second, cfg.JobTimeout)
	require.False(t, cfg.TracingEnabled)
	require.Equal(t, "info", cfg.LogLevel)

	rc := cfg.runnerConfig()
	require.Equal(t, 10, rc.BatchSize)
	require.Equal(t, 4, rc.NumWorkers)

	mc := cfg.messageConfig()
	require.Equal(t, "themis.results", mc.ResultSubject)
	require.Equal(t, 5, mc.MaxDeliver)
}

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := parseConfig(env.Options{Environment: map[string]string{
		"THEMIS_NATS_URL":    "nats://nats:4222",
		"THEMIS_NATS_TOKEN":  "secret",
		"THEMIS_WORKERS":     "8",
		"THEMIS_JOB_TIMEOUT": "1m",
		"THEMIS_LOG_LEVEL":   "debug",
	}})
	require.NoError(t, err)
	require.Equal(t, 8, cfg.runnerConfig().NumWorkers)
	require.Equal(t, time.Minute, cfg.runnerConfig().JobTimeout)

	conn := cfg.connectionConfig()
	require.Equal(t, "nats://nats:4222", conn.URL)
	require.Equal(t, "secret", conn.Token)
	require.Equal(t, "themis", conn.Name)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad duration", env: map[string]string{"THEMIS_JOB_TIMEOUT": "soon"}},
		{name: "bad level", env: map[string]string{"THEMIS_LOG_LEVEL": "loud"}},
		{name: "no workers", env: map[string]string{"THEMIS_WORKERS": "0"}},
		{name: "bad sample ratio", env: map[string]string{"THEMIS_TRACING_ENABLED": "true", "THEMIS_TRACE_SAMPLE_RATIO": "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(env.Options{Environment: tt.env})
			require.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("warn")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(-1))

	_, err = newLogger("chatty")
	require.Error(t, err)
}

func TestValidateContinueOnFail(t *testing.T) {
	out, err := execute(t, signupJob, "validate", "--continue-on-fail")
	require.NoError(t, err)

	var items []node.Item
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	require.NotContains(t, items[0].JSON, "error")
	require.Equal(t, "this must be a valid email", items[1].JSON["error"])
	require.Equal(t, &node.PairedItem{Item: 1}, items[1].PairedItem)
}

func TestValidateHalts(t *testing.T) {
	out, err := execute(t, signupJob, "validate")
	require.EqualError(t, err, "this must be a valid email (item 1)")
	require.Empty(t, out)
}

func TestValidateJobFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	job := strings.Replace(signupJob, `"nodeType": "yupValidation",`, "", 1)
	require.NoError(t, os.WriteFile(path, []byte(job), 0o600))

	_, err := execute(t, "", "validate", "--job", path)
	require.ErrorContains(t, err, "job has no node type")

	out, err := execute(t, "", "validate", "--job", path, "--node", "yupValidation", "--continue-on-fail")
	require.NoError(t, err)
	require.Contains(t, out, "this must be a valid email")

	_, err = execute(t, "", "validate", "--job", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestValidateRejectsBadInput(t *testing.T) {
	_, err := execute(t, "not json", "validate")
	require.ErrorContains(t, err, "invalid job")

	_, err = execute(t, signupJob, "validate", "--node", "n8n-nodes-base.set")
	require.ErrorContains(t, err, "no node registered")
}

func TestDescribe(t *testing.T) {
	out, err := execute(t, "", "describe")
	require.NoError(t, err)
	var all []node.Description
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	require.Len(t, all, 2)

	out, err = execute(t, "", "describe", "yupDataValidator")
	require.NoError(t, err)
	var one node.Description
	require.NoError(t, json.Unmarshal([]byte(out), &one))
	require.Equal(t, "Yup Data Validator", one.DisplayName)

	_, err = execute(t, "", "describe", "nope")
	require.ErrorIs(t, err, node.ErrUnknownNodeType)
}
