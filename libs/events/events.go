// Package events defines the domain event taxonomy shared by all services:
// the fixed topic set, the per-topic payload contracts, and the narrow
// decoding step consumers use before acting on a message.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// The closed topic taxonomy. Extensible only by adding entries here.
const (
	TopicUserRegistered = "user.registered"
	TopicUserLoggedIn   = "user.logged_in"
	TopicBoardCreated   = "board.created"
	TopicBoardUpdated   = "board.updated"
	TopicBoardDeleted   = "board.deleted"
	TopicTaskCreated    = "task.created"
	TopicTaskUpdated    = "task.updated"
	TopicTaskMoved      = "task.moved"
	TopicTaskDeleted    = "task.deleted"
)

// AllTopics lists every topic in the taxonomy.
var AllTopics = []string{
	TopicUserRegistered,
	TopicUserLoggedIn,
	TopicBoardCreated,
	TopicBoardUpdated,
	TopicBoardDeleted,
	TopicTaskCreated,
	TopicTaskUpdated,
	TopicTaskMoved,
	TopicTaskDeleted,
}

func ValidTopic(topic string) bool {
	for _, t := range AllTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// Envelope is the in-process view of a delivered domain event. The wire body
// is the payload JSON alone; topic and key travel as Kafka metadata.
type Envelope struct {
	Topic      string
	Key        string
	Payload    json.RawMessage
	ProducedAt time.Time
}

// Payload is implemented by every typed event payload. Validate reports the
// first missing required field; consumers reject events that fail it instead
// of crashing on partial data.
type Payload interface {
	Validate() error
}

// Decode unmarshals raw into a typed payload and validates its required
// fields. A non-nil error means the event must be quarantined, not applied.
func Decode[T Payload](raw []byte) (T, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("events: decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func missing(topic, field string) error {
	return fmt.Errorf("events: %s payload missing %s", topic, field)
}

type BoardCreated struct {
	BoardID    string `json:"boardId"`
	Name       string `json:"name"`
	OwnerID    string `json:"ownerId"`
	Visibility string `json:"visibility"`
	Timestamp  string `json:"timestamp"`
}

func (e BoardCreated) Validate() error {
	switch {
	case e.BoardID == "":
		return missing(TopicBoardCreated, "boardId")
	case e.Name == "":
		return missing(TopicBoardCreated, "name")
	case e.OwnerID == "":
		return missing(TopicBoardCreated, "ownerId")
	case e.Visibility == "":
		return missing(TopicBoardCreated, "visibility")
	}
	return nil
}

type BoardUpdated struct {
	BoardID   string         `json:"boardId"`
	Updates   map[string]any `json:"updates"`
	Timestamp string         `json:"timestamp"`
}

func (e BoardUpdated) Validate() error {
	if e.BoardID == "" {
		return missing(TopicBoardUpdated, "boardId")
	}
	if e.Updates == nil {
		return missing(TopicBoardUpdated, "updates")
	}
	return nil
}

type BoardDeleted struct {
	BoardID   string `json:"boardId"`
	Timestamp string `json:"timestamp"`
}

func (e BoardDeleted) Validate() error {
	if e.BoardID == "" {
		return missing(TopicBoardDeleted, "boardId")
	}
	return nil
}

type TaskCreated struct {
	TaskID    string `json:"taskId"`
	BoardID   string `json:"boardId"`
	Title     string `json:"title"`
	ColumnID  string `json:"columnId"`
	Timestamp string `json:"timestamp"`
}

func (e TaskCreated) Validate() error {
	switch {
	case e.TaskID == "":
		return missing(TopicTaskCreated, "taskId")
	case e.BoardID == "":
		return missing(TopicTaskCreated, "boardId")
	case e.Title == "":
		return missing(TopicTaskCreated, "title")
	case e.ColumnID == "":
		return missing(TopicTaskCreated, "columnId")
	}
	return nil
}

type TaskUpdated struct {
	TaskID    string         `json:"taskId"`
	BoardID   string         `json:"boardId"`
	Updates   map[string]any `json:"updates"`
	Timestamp string         `json:"timestamp"`
}

func (e TaskUpdated) Validate() error {
	switch {
	case e.TaskID == "":
		return missing(TopicTaskUpdated, "taskId")
	case e.BoardID == "":
		return missing(TopicTaskUpdated, "boardId")
	case e.Updates == nil:
		return missing(TopicTaskUpdated, "updates")
	}
	return nil
}

type TaskMoved struct {
	TaskID      string `json:"taskId"`
	BoardID     string `json:"boardId"`
	OldColumnID string `json:"oldColumnId"`
	NewColumnID string `json:"newColumnId"`
	Timestamp   string `json:"timestamp"`
}

func (e TaskMoved) Validate() error {
	switch {
	case e.TaskID == "":
		return missing(TopicTaskMoved, "taskId")
	case e.BoardID == "":
		return missing(TopicTaskMoved, "boardId")
	case e.OldColumnID == "":
		return missing(TopicTaskMoved, "oldColumnId")
	case e.NewColumnID == "":
		return missing(TopicTaskMoved, "newColumnId")
	}
	return nil
}

type TaskDeleted struct {
	TaskID    string `json:"taskId"`
	BoardID   string `json:"boardId"`
	Timestamp string `json:"timestamp"`
}

func (e TaskDeleted) Validate() error {
	if e.TaskID == "" {
		return missing(TopicTaskDeleted, "taskId")
	}
	if e.BoardID == "" {
		return missing(TopicTaskDeleted, "boardId")
	}
	return nil
}

type UserRegistered struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

func (e UserRegistered) Validate() error {
	switch {
	case e.UserID == "":
		return missing(TopicUserRegistered, "userId")
	case e.Email == "":
		return missing(TopicUserRegistered, "email")
	case e.Name == "":
		return missing(TopicUserRegistered, "name")
	}
	return nil
}

type UserLoggedIn struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Timestamp string `json:"timestamp"`
}

func (e UserLoggedIn) Validate() error {
	if e.UserID == "" {
		return missing(TopicUserLoggedIn, "userId")
	}
	if e.Email == "" {
		return missing(TopicUserLoggedIn, "email")
	}
	return nil
}
