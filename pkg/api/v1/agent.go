package v1

import "time"

// AgentStatus is the observable state of one registered agent kind, as
// tracked by the status manager. CurrentTask is nil when the agent is
// idle.
type AgentStatus struct {
	Kind                string    `json:"kind"`
	IsBusy              bool      `json:"is_busy"`
	CurrentTask         *string   `json:"current_task,omitempty"`
	TasksCompleted      int64     `json:"tasks_completed"`
	TasksFailed         int64     `json:"tasks_failed"`
	AvgExecutionSeconds float64   `json:"avg_execution_seconds"`
	LastActivity        time.Time `json:"last_activity"`
}

// ContainerPhase is the lifecycle phase of a docker-backed generator
// runtime container. Only meaningful when generator.runtime=docker.
type ContainerPhase string

const (
	ContainerPending   ContainerPhase = "PENDING"
	ContainerStarting  ContainerPhase = "STARTING"
	ContainerRunning   ContainerPhase = "RUNNING"
	ContainerCompleted ContainerPhase = "COMPLETED"
	ContainerFailed    ContainerPhase = "FAILED"
	ContainerStopped   ContainerPhase = "STOPPED"
)

// ResourceLimits bounds the container resources granted to a single
// generator invocation when the docker-backed runtime is selected.
type ResourceLimits struct {
	CPULimit    string `json:"cpu_limit"`
	MemoryLimit string `json:"memory_limit"`
	DiskLimit   string `json:"disk_limit"`
}

// AgentRuntimeInstance describes one container launched to host a
// generator invocation. It exists only when generator.runtime=docker;
// the default HTTP generator adapter never populates this type.
type AgentRuntimeInstance struct {
	ID             string         `json:"id"`
	TaskID         string         `json:"task_id"`
	AgentKind      string         `json:"agent_kind"`
	ContainerID    *string        `json:"container_id,omitempty"`
	ContainerName  *string        `json:"container_name,omitempty"`
	Phase          ContainerPhase `json:"phase"`
	ImageName      string         `json:"image_name"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	StoppedAt      *time.Time     `json:"stopped_at,omitempty"`
	ExitCode       *int           `json:"exit_code,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	ResourceLimits ResourceLimits `json:"resource_limits"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
