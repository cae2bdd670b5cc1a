package policy

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validRuntimePolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "RuntimeLogs",
      "Effect": "Allow",
      "Action": ["logs:CreateLogStream", "logs:PutLogEvents"],
      "Resource": "arn:aws:logs:*:*:log-group:/aws/bedrock-agentcore/*"
    }
  ]
}`

const validInvokePolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": "bedrock-agentcore:InvokeAgentRuntime",
      "Resource": ["arn:aws:bedrock-agentcore:*:*:runtime/*"]
    }
  ]
}`

func writePolicyDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadAll(t *testing.T) {
	dir := writePolicyDir(t, map[string]string{
		"agentcore-runtime-policy.json": validRuntimePolicy,
		"agentcore-invoke-policy.json":  validInvokePolicy,
	})

	docs, err := NewLoader(dir).LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}

	// Order follows the expected file list, not directory order.
	if docs[0].Name != "AgentcoreRuntimePolicy" {
		t.Errorf("Unexpected template name: %s", docs[0].Name)
	}
	if docs[1].Statement[0].Action[0] != "bedrock-agentcore:InvokeAgentRuntime" {
		t.Errorf("String-form Action not normalized: %v", docs[1].Statement[0].Action)
	}
	if docs[0].Statement[0].Resource[0] == "" {
		t.Error("Resource list lost during load")
	}
}

func TestLoadAllMissingFile(t *testing.T) {
	dir := writePolicyDir(t, map[string]string{
		"agentcore-runtime-policy.json": validRuntimePolicy,
	})

	_, err := NewLoader(dir).LoadAll()
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Expected *LoadError, got %v", err)
	}
	if le.File != "agentcore-invoke-policy.json" {
		t.Errorf("Error names wrong file: %s", le.File)
	}
}

func TestLoadAllRejectsOversized(t *testing.T) {
	big := `{"Version": "2012-10-17", "Statement": [{"Effect": "Allow", "Action": "` +
		strings.Repeat("x", 11000) + `", "Resource": "*"}]}`
	dir := writePolicyDir(t, map[string]string{
		"agentcore-runtime-policy.json": big,
		"agentcore-invoke-policy.json":  validInvokePolicy,
	})

	_, err := NewLoader(dir).LoadAll()
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Expected *LoadError, got %v", err)
	}
	if !strings.Contains(le.Reason, "ceiling") {
		t.Errorf("Expected size ceiling message, got %q", le.Reason)
	}
}

func TestLoadAllRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"no version":   `{"Statement": [{"Effect": "Allow", "Action": "s3:GetObject", "Resource": "*"}]}`,
		"no statement": `{"Version": "2012-10-17"}`,
		"bad json":     `{not json`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := writePolicyDir(t, map[string]string{
				"agentcore-runtime-policy.json": body,
				"agentcore-invoke-policy.json":  validInvokePolicy,
			})
			if _, err := NewLoader(dir).LoadAll(); err == nil {
				t.Error("Expected load failure")
			}
		})
	}
}

func TestPrincipalWildcardRoundTrip(t *testing.T) {
	var s Statement
	data := []byte(`{"Effect": "Allow", "Principal": "*", "Action": "sts:AssumeRole"}`)
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatal(err)
	}
	if s.Principal == nil || !s.Principal.Wildcard {
		t.Fatal("Wildcard principal not detected")
	}
}

func TestTemplateName(t *testing.T) {
	cases := map[string]string{
		"agentcore-runtime-policy.json": "AgentcoreRuntimePolicy",
		"invoke_policy.json":            "InvokePolicy",
		"a.json":                        "A",
	}
	for in, want := range cases {
		if got := TemplateName(in); got != want {
			t.Errorf("TemplateName(%q) = %q, want %q", in, got, want)
		}
	}
}
