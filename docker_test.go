package newsdesk_test

import (
	"os"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// composeFile はdocker-compose.ymlのうちテストで検証する部分。
type composeFile struct {
	Services map[string]struct {
		Image    string   `yaml:"image"`
		Command  []string `yaml:"command"`
		Networks []string `yaml:"networks"`
	} `yaml:"services"`
	Networks map[string]struct {
		Internal bool `yaml:"internal"`
	} `yaml:"networks"`
}

func readDockerfile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("Dockerfile")
	if err != nil {
		t.Fatalf("failed to read Dockerfile: %v", err)
	}
	return string(data)
}

func readCompose(t *testing.T) composeFile {
	t.Helper()
	data, err := os.ReadFile("docker-compose.yml")
	if err != nil {
		t.Fatalf("failed to read docker-compose.yml: %v", err)
	}
	var c composeFile
	if err := yaml.Unmarshal(data, &c); err != nil {
		t.Fatalf("failed to parse docker-compose.yml: %v", err)
	}
	return c
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readDockerfile(t)

	// マルチステージビルドの確認: ビルドステージと実行ステージが存在すること
	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") && !strings.Contains(lastFrom, "alpine") && !strings.Contains(lastFrom, "scratch") {
		t.Errorf("final stage should use a minimal base image (distroless/alpine/scratch), got: %s", lastFrom)
	}
}

func TestDockerfileBuildsNewsdeskBinary(t *testing.T) {
	content := readDockerfile(t)

	if !strings.Contains(content, "./cmd/newsdesk") {
		t.Error("Dockerfile should build ./cmd/newsdesk")
	}
	if !strings.Contains(content, "ENTRYPOINT") {
		t.Error("Dockerfile should contain ENTRYPOINT")
	}
	// distrolessにはシェルがないため、healthcheckサブコマンドを使うこと
	if !strings.Contains(content, `"healthcheck"`) {
		t.Error("Dockerfile HEALTHCHECK should use the healthcheck subcommand")
	}
}

func TestDockerComposeServices(t *testing.T) {
	c := readCompose(t)

	tests := map[string][]string{
		"api":     {"serve"},
		"worker":  {"worker"},
		"migrate": {"migrate"},
	}
	for name, wantCmd := range tests {
		svc, ok := c.Services[name]
		if !ok {
			t.Errorf("docker-compose.yml should contain service %q", name)
			continue
		}
		if !slices.Equal(svc.Command, wantCmd) {
			t.Errorf("service %q command = %v, want %v", name, svc.Command, wantCmd)
		}
	}

	if db, ok := c.Services["db"]; !ok || !strings.HasPrefix(db.Image, "postgres:") {
		t.Errorf("db service should use PostgreSQL image, got %+v", db)
	}
}

func TestDockerComposeNetworks(t *testing.T) {
	c := readCompose(t)

	if !c.Networks["backend"].Internal {
		t.Error("backend network should be internal: true")
	}
	// 外部に公開するのはAPIのみ
	for name, svc := range c.Services {
		exposed := slices.Contains(svc.Networks, "frontend")
		if exposed != (name == "api") {
			t.Errorf("service %q frontend network = %v", name, exposed)
		}
	}
}
