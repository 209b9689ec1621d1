package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cascadehq/cascade/libs/docstore"
)

var ErrDuplicateEmail = errors.New("storage: email already registered")

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type UserRepository struct {
	col docstore.Collection
}

func NewUserRepository(col docstore.Collection) *UserRepository {
	return &UserRepository{col: col}
}

func (r *UserRepository) Insert(ctx context.Context, user *User) error {
	existing, err := r.FindByEmail(ctx, user.Email)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	if existing != nil {
		return ErrDuplicateEmail
	}
	doc, err := docstore.ToDoc(user)
	if err != nil {
		return err
	}
	return r.col.Create(ctx, user.ID, doc)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	docs, err := r.col.Find(ctx, docstore.Filter{"email": email})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, docstore.ErrNotFound
	}
	var user User
	if err := docstore.FromDoc(docs[0], &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*User, error) {
	doc, err := r.col.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var user User
	if err := docstore.FromDoc(doc, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
