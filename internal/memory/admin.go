package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tutorgate/internal/models"
)

var ErrMemoryNotFound = errors.New("memory not found")

// AdminStore is the structured-store surface used by Admin.
type AdminStore interface {
	GetMemoryItem(ctx context.Context, id string) (*models.MemoryItem, error)
	DeleteMemoryItem(ctx context.Context, id string) error
	ListMemoryItems(ctx context.Context, userID string, limit int) ([]models.MemoryItem, error)
	DeleteUser(ctx context.Context, userID string) error
}

// VectorRemover deletes from the vector index.
type VectorRemover interface {
	Delete(ctx context.Context, namespace string, ids []string) error
	DropNamespace(ctx context.Context, namespace string) error
}

type DeleteResult struct {
	MemoryID string `json:"memory_id"`
	VectorID string `json:"vector_id,omitempty"`
}

// Admin deletes memories from both stores. The vector goes first and the row
// delete is the commit point, so a failure never leaves an orphaned vector.
type Admin struct {
	items  AdminStore
	index  VectorRemover
	prefix string
}

func NewAdmin(items AdminStore, index VectorRemover, prefix string) *Admin {
	return &Admin{items: items, index: index, prefix: prefix}
}

func (a *Admin) ListMemory(ctx context.Context, userID string, limit int) ([]models.MemoryItem, error) {
	return a.items.ListMemoryItems(ctx, userID, limit)
}

// DeleteMemory removes the vector then the row. A vector failure keeps the row.
func (a *Admin) DeleteMemory(ctx context.Context, memoryID string) (DeleteResult, error) {
	item, err := a.items.GetMemoryItem(ctx, memoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DeleteResult{}, ErrMemoryNotFound
		}
		return DeleteResult{}, err
	}
	res := DeleteResult{MemoryID: item.ID, VectorID: item.VectorID}
	if item.VectorID != "" {
		if err := a.index.Delete(ctx, Namespace(a.prefix, item.UserID), []string{item.VectorID}); err != nil {
			return res, fmt.Errorf("delete memory vector: %w", err)
		}
	}
	if err := a.items.DeleteMemoryItem(ctx, memoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrMemoryNotFound
		}
		return res, err
	}
	return res, nil
}

// PurgeUser drops the user's vector namespace and then the user with all rows.
func (a *Admin) PurgeUser(ctx context.Context, userID string) error {
	if err := a.index.DropNamespace(ctx, Namespace(a.prefix, userID)); err != nil {
		return err
	}
	return a.items.DeleteUser(ctx, userID)
}
