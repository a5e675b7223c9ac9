package task

const (
	EventCreated   = "scheduler.task.created"
	EventUpdated   = "scheduler.task.updated"
	EventDeleted   = "scheduler.task.deleted"
	EventStarted   = "scheduler.task.started"
	EventCompleted = "scheduler.task.completed"
)

type TaskProps struct {
	Task Task `json:"task"`
}

type DeletedProps struct {
	TaskID string `json:"taskId"`
}

type StartedProps struct {
	Task      Task   `json:"task"`
	SessionID string `json:"sessionId"`
}

type CompletedProps struct {
	Task      Task      `json:"task"`
	SessionID string    `json:"sessionId"`
	Status    RunStatus `json:"status"`
}
