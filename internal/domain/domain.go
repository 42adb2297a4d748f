// Package domain holds the entity types of the ployer data model and the
// validation rules §3 of the specification pins on them.
package domain

import (
	"regexp"
	"strings"
	"time"
)

// ServerStatus is the liveness status of a registered host.
type ServerStatus string

const (
	ServerOnline  ServerStatus = "online"
	ServerOffline ServerStatus = "offline"
	ServerUnknown ServerStatus = "unknown"
)

// Server is a host ployer can place containers on.
type Server struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Host         string       `json:"host"`
	Port         int          `json:"port"`
	Username     string       `json:"username"`
	SSHKeySealed string       `json:"-"`
	IsLocal      bool         `json:"is_local"`
	Status       ServerStatus `json:"status"`
	LastSeenAt   *time.Time   `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ValidPort reports whether port is in the inclusive range spec.md requires
// for Server.port and Application.port.
func ValidPort(port int) bool {
	return port >= 1 && port <= 65535
}

// BuildStrategy selects how an Application's source becomes an image.
type BuildStrategy string

const (
	BuildDockerfile     BuildStrategy = "dockerfile"
	BuildNixpacks       BuildStrategy = "nixpacks"
	BuildDockerCompose  BuildStrategy = "docker_compose"
)

// AppStatus is the coarse lifecycle status of an Application, separate
// from the fine-grained Deployment state machine.
type AppStatus string

const (
	AppIdle     AppStatus = "idle"
	AppBuilding AppStatus = "building"
	AppRunning  AppStatus = "running"
	AppStopped  AppStatus = "stopped"
	AppFailed   AppStatus = "failed"
)

// Application is a user-declared logical service.
type Application struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	ServerID       string        `json:"server_id"`
	GitURL         *string       `json:"git_url,omitempty"`
	GitBranch      string        `json:"git_branch"`
	BuildStrategy  BuildStrategy `json:"build_strategy"`
	DockerfilePath *string       `json:"dockerfile_path,omitempty"`
	Port           *int          `json:"port,omitempty"`
	Status         AppStatus     `json:"status"`
	AutoDeploy     bool          `json:"auto_deploy"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

var dnsLabelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidAppName reports whether name satisfies the DNS-label rule the
// subdomain-derivation step of the deployment pipeline depends on.
func ValidAppName(name string) bool {
	if len(name) == 0 || len(name) > 63 {
		return false
	}
	return dnsLabelRe.MatchString(name)
}

// EnvironmentVariable is one sealed key=value pair owned by an Application.
type EnvironmentVariable struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Key           string    `json:"key"`
	ValueSealed   string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

var envKeyRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidEnvKey reports whether key matches the allowed character class for
// environment-variable names.
func ValidEnvKey(key string) bool {
	return key != "" && envKeyRe.MatchString(key)
}

// DeployKey is the at-most-one SSH keypair an Application uses to clone a
// private repository.
type DeployKey struct {
	ID              string    `json:"id"`
	ApplicationID   string    `json:"application_id"`
	PublicKey       string    `json:"public_key"`
	PrivateKeySealed string   `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// DeploymentStatus is the deployment pipeline's state machine. Transitions
// are defined in the executor, not here; this package only enumerates the
// states and which are terminal.
type DeploymentStatus string

const (
	DeployQueued     DeploymentStatus = "queued"
	DeployCloning    DeploymentStatus = "cloning"
	DeployBuilding   DeploymentStatus = "building"
	DeployDeploying  DeploymentStatus = "deploying"
	DeployRunning    DeploymentStatus = "running"
	DeployFailed     DeploymentStatus = "failed"
	DeployCancelled  DeploymentStatus = "cancelled"
	DeployRolledBack DeploymentStatus = "rolled_back"
)

// IsTerminal reports whether s is one of the pipeline's terminal states.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case DeployRunning, DeployFailed, DeployCancelled, DeployRolledBack:
		return true
	default:
		return false
	}
}

// Deployment is one attempt to turn a source revision into a running
// container.
type Deployment struct {
	ID             string           `json:"id"`
	ApplicationID  string           `json:"application_id"`
	ServerID       string           `json:"server_id"`
	CommitSHA      *string          `json:"commit_sha,omitempty"`
	CommitMessage  *string          `json:"commit_message,omitempty"`
	Status         DeploymentStatus `json:"status"`
	BuildLog       string           `json:"build_log,omitempty"`
	ContainerID    *string          `json:"container_id,omitempty"`
	ImageTag       string           `json:"image_tag"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
}

// Domain is a hostname routed to an Application.
type Domain struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	DomainName    string    `json:"domain"`
	IsPrimary     bool      `json:"is_primary"`
	SSLActive     bool      `json:"ssl_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// WebhookProvider names the source-hosting provider a Webhook authenticates
// payloads from.
type WebhookProvider string

const (
	ProviderGitHub WebhookProvider = "github"
	ProviderGitLab WebhookProvider = "gitlab"
)

// Webhook is the at-most-one push-event receiver configured per Application.
type Webhook struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Provider      WebhookProvider `json:"provider"`
	Secret        string          `json:"-"`
	Enabled       bool            `json:"enabled"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// WebhookDeliveryStatus is the recorded outcome of one inbound webhook call.
type WebhookDeliveryStatus string

const (
	DeliverySuccess WebhookDeliveryStatus = "success"
	DeliveryFailed  WebhookDeliveryStatus = "failed"
	DeliverySkipped WebhookDeliveryStatus = "skipped"
)

// WebhookDelivery is an append-only audit row for one inbound webhook call.
type WebhookDelivery struct {
	ID            string                `json:"id"`
	WebhookID     string                `json:"webhook_id"`
	ApplicationID string                `json:"application_id"`
	Provider      WebhookProvider       `json:"provider"`
	EventType     string                `json:"event_type"`
	Branch        *string               `json:"branch,omitempty"`
	CommitSHA     *string               `json:"commit_sha,omitempty"`
	CommitMessage *string               `json:"commit_message,omitempty"`
	Author        *string               `json:"author,omitempty"`
	Status        WebhookDeliveryStatus `json:"status"`
	DeploymentID  *string               `json:"deployment_id,omitempty"`
	DeliveredAt   time.Time             `json:"delivered_at"`
}

// HealthCheck is the at-most-one probe configuration for an Application.
type HealthCheck struct {
	ApplicationID       string `json:"application_id"`
	Path                string `json:"path"`
	IntervalSeconds     int    `json:"interval_seconds"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
	HealthyThreshold    int    `json:"healthy_threshold"`
	UnhealthyThreshold  int    `json:"unhealthy_threshold"`
}

// HealthCheckStatus is the classification of a single probe.
type HealthCheckStatus string

const (
	HealthHealthy   HealthCheckStatus = "healthy"
	HealthUnhealthy HealthCheckStatus = "unhealthy"
	HealthUnknown   HealthCheckStatus = "unknown"
)

// HealthCheckResult is one append-only probe outcome.
type HealthCheckResult struct {
	ID             string            `json:"id"`
	ApplicationID  string            `json:"application_id"`
	ContainerID    string            `json:"container_id"`
	Status         HealthCheckStatus `json:"status"`
	ResponseTimeMs *int              `json:"response_time_ms,omitempty"`
	StatusCode     *int              `json:"status_code,omitempty"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	CheckedAt      time.Time         `json:"checked_at"`
}

// ContainerStatsSample is one append-only resource-usage sample.
type ContainerStatsSample struct {
	ID             string    `json:"id"`
	ContainerID    string    `json:"container_id"`
	ApplicationID  *string   `json:"application_id,omitempty"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryMB       float64   `json:"memory_mb"`
	MemoryLimitMB  *float64  `json:"memory_limit_mb,omitempty"`
	NetworkRxMB    *float64  `json:"network_rx_mb,omitempty"`
	NetworkTxMB    *float64  `json:"network_tx_mb,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// ValidEmail rejects strings missing "@" or "." or exceeding 254 characters,
// the boundary spec.md requires of the out-of-core user-auth surface.
func ValidEmail(email string) bool {
	if len(email) == 0 || len(email) > 254 {
		return false
	}
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}

// ValidPassword requires length in [8, 128].
func ValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 128
}
