package domain

// Board is the top-level collaborative workspace.
type Board struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"ownerId"`
	CreatedAt   int64  `json:"createdAt"`
}

// Column is an ordered lane within a board. Position is zero-based and
// contiguous per board.
type Column struct {
	ID        string `json:"id"`
	BoardID   string `json:"boardId"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Task is a card within a column. Position is zero-based and contiguous per
// column. UpdatedAt is a monotonic stamp used to reject stale change events.
type Task struct {
	ID          string `json:"id"`
	ColumnID    string `json:"columnId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Position    int    `json:"position"`
	AssigneeID  string `json:"assigneeId,omitempty"`
	CreatorID   string `json:"creatorId,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// ColumnFields carries a partial column update.
type ColumnFields struct {
	Title *string `json:"title,omitempty"`
}

// TaskFields carries a partial task update.
type TaskFields struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ColumnID    *string `json:"columnId,omitempty"`
	Position    *int    `json:"position,omitempty"`
	AssigneeID  *string `json:"assigneeId,omitempty"`
}

// Member links a user profile to a board.
type Member struct {
	BoardID string `json:"boardId"`
	UserID  string `json:"userId"`
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Comment is attached to a task.
type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

// Attachment references a file held in external blob storage. Only metadata
// lives here; the binary content is fetched through signed URLs.
type Attachment struct {
	ID         string `json:"id"`
	TaskID     string `json:"taskId"`
	Name       string `json:"name"`
	BlobPath   string `json:"blobPath"`
	Size       int64  `json:"size"`
	UploadedBy string `json:"uploadedBy"`
	CreatedAt  int64  `json:"createdAt"`
}

// Relation types.
const (
	RelationBlocks     = "blocks"
	RelationDuplicates = "duplicates"
	RelationRelatesTo  = "relates-to"
)

// TaskRelation links two tasks.
type TaskRelation struct {
	ID           string `json:"id"`
	SourceTaskID string `json:"sourceTaskId"`
	TargetTaskID string `json:"targetTaskId"`
	Type         string `json:"type"`
}

// RelatedTask is a relation resolved against the counterpart task, direction
// relative to the task it was queried for.
type RelatedTask struct {
	TaskRelation
	RelatedTaskTitle string `json:"relatedTaskTitle"`
	Direction        string `json:"direction"` // "outgoing" | "incoming"
}

// Notification is delivered asynchronously to a user.
type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	TaskID    string `json:"taskId,omitempty"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"createdAt"`
}

// ChatMessage belongs to a board-scoped conversation.
type ChatMessage struct {
	ID        string `json:"id"`
	BoardID   string `json:"boardId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

// ColumnTasks pairs a column with its ordered tasks inside a snapshot.
type ColumnTasks struct {
	Column
	Tasks []Task `json:"tasks"`
}

// Snapshot is the full authoritative state of a board, used for the initial
// load and for failure-recovery refreshes.
type Snapshot struct {
	Board   Board         `json:"board"`
	Columns []ColumnTasks `json:"columns"`
	Members []Member      `json:"members"`
}
