// Package model defines the board and task aggregates as stored in the
// system of record. JSON field names are the wire names used by the query
// side and the event payloads.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"

	RoleOwner  = "owner"
	RoleMember = "member"
)

var Priorities = []string{"low", "medium", "high"}

type Member struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Column struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
	Color string `json:"color"`
}

type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Board struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId"`
	Visibility  string    `json:"visibility"`
	JoinPin     string    `json:"joinPin,omitempty"`
	Members     []Member  `json:"members"`
	Columns     []Column  `json:"columns"`
	Tags        []Tag     `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (b *Board) HasMember(userID string) bool {
	for _, m := range b.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

type Task struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"boardId"`
	ColumnID    string     `json:"columnId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	Tags        []string   `json:"tags"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// DefaultColumns is the column set every new board starts with.
func DefaultColumns() []Column {
	return []Column{
		{ID: "todo", Name: "To Do", Order: 0, Color: "#64748b"},
		{ID: "in-progress", Name: "In Progress", Order: 1, Color: "#3b82f6"},
		{ID: "done", Name: "Done", Order: 2, Color: "#22c55e"},
	}
}

// NewJoinPin returns a random 6-digit PIN for private boards.
func NewJoinPin() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand failing means the process is in much deeper trouble.
		panic(err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}

// NewShortID returns a compact random id for columns and tags.
func NewShortID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

func ValidPriority(p string) bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

func ValidVisibility(v string) bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}
