// Package main is the entry point for the ployerctl operator CLI.
//
// Grounded on the teacher's cmd/deployerctl and cmd/bp (subcommand dispatch
// over os.Args[1], a ~/.ployerctl.yaml config file storing the server URL and
// token, golang.org/x/term for a no-echo secret prompt at "login" time).
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var version = "0.1.0"

// cliConfig holds the CLI's persisted server URL and bearer token.
type cliConfig struct {
	Server string `yaml:"server"`
	Token  string `yaml:"token,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version", "-v", "--version":
		fmt.Printf("ployerctl version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "login":
		cmdLogin(args)
	case "apps":
		cmdApps(args)
	case "deploy":
		cmdDeploy(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ployerctl - CLI for ployer

Usage:
  ployerctl <command> [arguments]

Commands:
  login <server>      save a server URL and bearer token
  apps                list applications
  deploy <app-id>     trigger a deployment

Options:
  -h, --help     show help
  -v, --version  show version`)
}

func configPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ployerctl.yaml"
	}
	return filepath.Join(home, ".ployerctl.yaml")
}

func loadConfig() (*cliConfig, error) {
	data, err := os.ReadFile(configPath())
	if err != nil {
		return nil, err
	}
	var cfg cliConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func saveConfig(cfg *cliConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0600)
}

// cmdLogin prompts for the shared bearer token without echoing it, the
// same no-echo idiom the teacher's cmd/bp uses for its admin password.
func cmdLogin(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: ployerctl login <server-url>")
		os.Exit(1)
	}
	server := strings.TrimSuffix(args[0], "/")

	fmt.Print("Token: ")
	tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		tokenBytes = []byte(strings.TrimSpace(line))
	}

	cfg := &cliConfig{Server: server, Token: string(tokenBytes)}
	if err := saveConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to save config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("saved.")
}

func cmdApps(args []string) {
	cfg := mustConfig()
	body, err := request(cfg, http.MethodGet, "/api/v1/apps/", nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Stdout.Write(body)
	fmt.Println()
}

func cmdDeploy(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: ployerctl deploy <app-id>")
		os.Exit(1)
	}
	cfg := mustConfig()
	body, err := request(cfg, http.MethodPost, "/api/v1/apps/"+args[0]+"/deploy", nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Stdout.Write(body)
	fmt.Println()
}

func mustConfig() *cliConfig {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "not logged in; run: ployerctl login <server-url>")
		os.Exit(1)
	}
	return cfg
}

func request(cfg *cliConfig, method, path string, body []byte) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequest(method, cfg.Server+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(out))
	}
	return out, nil
}
