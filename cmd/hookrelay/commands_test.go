package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hookrelay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const routingConfig = `
routing:
  target_user: moslem
  common_repository: giteaFinalProject
webhook:
  secrets:
    gitea: s3cret
`

func TestCheckConfig_PrintsMaskedEffectiveConfig(t *testing.T) {
	path := writeTestConfig(t, routingConfig)
	out, err := runCLI(t, "", "check-config", "--config", path)
	if err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if strings.Contains(out, "s3cret") {
		t.Fatalf("secret leaked:\n%s", out)
	}
	if !strings.Contains(out, "target_user: moslem") || !strings.Contains(out, "# config ok: 0 sink(s), providers gitea") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCheckConfig_ReportsInvalidConfig(t *testing.T) {
	path := writeTestConfig(t, "webhook:\n  providers: [bitbucket]\n")
	if _, err := runCLI(t, "", "check-config", "--config", path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestClassify_ReadsStdinAndRoutes(t *testing.T) {
	path := writeTestConfig(t, routingConfig)
	out, err := runCLI(t, pushBody, "classify", "--config", path)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	var decoded classifyOutput
	if err := yaml.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if decoded.Kind != "push" || decoded.Actor != "moslem" || decoded.Ref != "refs/heads/main" {
		t.Fatalf("unexpected classification %+v", decoded)
	}
	if strings.Join(decoded.Destinations, ",") != "common,personal" {
		t.Fatalf("unexpected destinations %v", decoded.Destinations)
	}
	if !strings.Contains(decoded.Message, "**Push Event** by **moslem**") {
		t.Fatalf("unexpected message %q", decoded.Message)
	}
}

func TestClassify_RejectsMalformedPayload(t *testing.T) {
	if _, err := runCLI(t, "[1,2]", "classify"); err == nil {
		t.Fatalf("expected malformed payload error")
	}
}

func TestDispatches_RequiresPersistentStore(t *testing.T) {
	if _, err := runCLI(t, "", "dispatches"); err == nil {
		t.Fatalf("expected memory store error")
	}
}
