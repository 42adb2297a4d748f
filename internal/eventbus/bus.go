// Package eventbus implements the process-wide, bounded, lossy-on-overflow
// broadcast bus that fans deployment logs, status transitions, stats
// samples, and health events out to live subscribers (spec.md §4.2).
//
// The bus is pure Go channels; pushing events over a WebSocket connection is
// the job of the HTTP layer, mirroring the teacher's separation between its
// podman/caddy adapters (build the bytes) and api.go's upgrade handler
// (push them over a socket).
package eventbus

import "sync"

// DefaultBufferSize is the minimum per-subscriber buffer capacity spec.md
// §4.2 requires.
const DefaultBufferSize = 256

// Kind tags an Event's payload type.
type Kind string

const (
	KindDeploymentStatus Kind = "deployment_status"
	KindDeploymentLog    Kind = "deployment_log"
	KindContainerStats   Kind = "container_stats"
	KindServerHealth     Kind = "server_health"
	KindAppHealth        Kind = "app_health"
)

// Event is a tagged union wrapping exactly one of the payload types below.
type Event struct {
	Kind             Kind              `json:"kind"`
	DeploymentStatus *DeploymentStatus `json:"deployment_status,omitempty"`
	DeploymentLog    *DeploymentLog    `json:"deployment_log,omitempty"`
	ContainerStats   *ContainerStats   `json:"container_stats,omitempty"`
	ServerHealth     *ServerHealth     `json:"server_health,omitempty"`
	AppHealth        *AppHealth        `json:"app_health,omitempty"`
}

type DeploymentStatus struct {
	DeploymentID string `json:"deployment_id"`
	AppID        string `json:"app_id"`
	Status       string `json:"status"`
}

type DeploymentLog struct {
	DeploymentID string `json:"deployment_id"`
	Line         string `json:"line"`
}

type ContainerStats struct {
	ContainerID string  `json:"container_id"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryMB    float64 `json:"memory_mb"`
}

type ServerHealth struct {
	ServerID string `json:"server_id"`
	Status   string `json:"status"`
}

type AppHealth struct {
	AppID  string `json:"app_id"`
	Status string `json:"status"`
}

// NewDeploymentStatus, NewDeploymentLog, etc. are convenience constructors
// so publishers don't hand-assemble the tagged union at every call site.
func NewDeploymentStatus(deploymentID, appID, status string) Event {
	return Event{Kind: KindDeploymentStatus, DeploymentStatus: &DeploymentStatus{deploymentID, appID, status}}
}

func NewDeploymentLog(deploymentID, line string) Event {
	return Event{Kind: KindDeploymentLog, DeploymentLog: &DeploymentLog{deploymentID, line}}
}

func NewContainerStats(containerID string, cpuPercent, memoryMB float64) Event {
	return Event{Kind: KindContainerStats, ContainerStats: &ContainerStats{containerID, cpuPercent, memoryMB}}
}

func NewServerHealth(serverID, status string) Event {
	return Event{Kind: KindServerHealth, ServerHealth: &ServerHealth{serverID, status}}
}

func NewAppHealth(appID, status string) Event {
	return Event{Kind: KindAppHealth, AppHealth: &AppHealth{appID, status}}
}

// subscriber is one live consumer's buffered channel plus its lag counter.
type subscriber struct {
	ch  chan Event
	lag int
}

// Bus is the broadcast primitive. Publish never blocks: a subscriber whose
// buffer is full has its oldest undelivered event dropped to make room, and
// its lag counter is incremented. Subscribers only ever see events
// published after they subscribed.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	bufferSize  int
}

// New returns a Bus with the given per-subscriber buffer capacity. Pass 0
// to use DefaultBufferSize.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subscribers: make(map[int]*subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscription is a handle returned by Subscribe; read from Events and call
// Unsubscribe when done.
type Subscription struct {
	id     int
	Events <-chan Event
	bus    *Bus
}

// Unsubscribe stops delivery to this subscription and releases its buffer.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Lag returns how many events have been dropped for this subscription
// because its buffer was full.
func (s *Subscription) Lag() int {
	return s.bus.Lag(s.id)
}

// Subscribe registers a new subscriber and returns a Subscription whose
// Events channel receives every event Publish sends from this point on.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, b.bufferSize)}
	b.subscribers[id] = sub

	return &Subscription{id: id, Events: sub.ch, bus: b}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Publish sends event to every current subscriber without blocking. If a
// subscriber's buffer is full, its oldest buffered event is dropped to make
// room and its lag counter is incremented — producers never block on a
// slow consumer.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			// Buffer full: drop the oldest queued event for this
			// subscriber, then retry once.
			select {
			case <-sub.ch:
				sub.lag++
			default:
			}
			select {
			case sub.ch <- event:
			default:
				sub.lag++
			}
		}
	}
}

// Lag returns the current drop count for the subscription, for diagnostics.
func (b *Bus) Lag(id int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		return sub.lag
	}
	return 0
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
