package task

// ModelRef selects the backend model that executes a task's prompt.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusError   RunStatus = "error"
)

func (s RunStatus) Valid() bool {
	switch s {
	case StatusRunning, StatusSuccess, StatusError:
		return true
	}
	return false
}

// Task is the unit of schedulable work.
//
// LastRunAt, LastRunStatus and LastSessionID are written only by
// MarkStarted/MarkCompleted.
type Task struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Cron      string    `json:"cron"`
	Cwd       string    `json:"cwd"`
	Prompt    string    `json:"prompt"`
	Model     *ModelRef `json:"model,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt int64     `json:"createdAt"` // epoch millis

	LastRunAt     *int64     `json:"lastRunAt,omitempty"`
	LastRunStatus *RunStatus `json:"lastRunStatus,omitempty"`
	LastSessionID *string    `json:"lastSessionId,omitempty"`
}

// CreateInput is a Task without the server-assigned and server-managed fields.
// Enabled defaults to true when omitted.
type CreateInput struct {
	Name    string    `json:"name"`
	Cron    string    `json:"cron"`
	Cwd     string    `json:"cwd"`
	Prompt  string    `json:"prompt"`
	Model   *ModelRef `json:"model,omitempty"`
	Enabled *bool     `json:"enabled,omitempty"`
}

// Patch is the public partial update. Nil fields are left unchanged.
type Patch struct {
	Name    *string   `json:"name,omitempty"`
	Cron    *string   `json:"cron,omitempty"`
	Cwd     *string   `json:"cwd,omitempty"`
	Prompt  *string   `json:"prompt,omitempty"`
	Model   *ModelRef `json:"model,omitempty"`
	Enabled *bool     `json:"enabled,omitempty"`
}

// AffectsSchedule reports whether applying p can change the task's timer.
func (p Patch) AffectsSchedule() bool {
	return p.Cron != nil || p.Enabled != nil
}

func (p Patch) apply(t *Task) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Cron != nil {
		t.Cron = *p.Cron
	}
	if p.Cwd != nil {
		t.Cwd = *p.Cwd
	}
	if p.Prompt != nil {
		t.Prompt = *p.Prompt
	}
	if p.Model != nil {
		m := *p.Model
		t.Model = &m
	}
	if p.Enabled != nil {
		t.Enabled = *p.Enabled
	}
}

// tasksFile is the persisted document at StorageKey.
type tasksFile struct {
	Tasks []Task `json:"tasks"`
}

// StorageKey is where the task list lives in the key-value store.
var StorageKey = []string{"scheduler", "tasks"}
