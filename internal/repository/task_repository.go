package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"task-tracker/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).First(&task, id).Error
	switch {
	case err == nil:
		return &task, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("find task: %w", err)
	}
}

// Save inserts a task without an id and overwrites the columns of an existing
// one. Updating a row that has been deleted yields ErrNotFound instead of
// inserting it again.
func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if task.ID == 0 {
		if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil
	}
	res := r.db.WithContext(ctx).Model(task).Select("*").Omit("created_at").Updates(task)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TaskRepository) DeleteByID(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, id).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// DeleteAllByOwner removes every task of username.
func (r *TaskRepository) DeleteAllByOwner(ctx context.Context, username string) error {
	if err := r.db.WithContext(ctx).Where("username = ?", username).Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete tasks of %q: %w", username, err)
	}
	return nil
}

// FindAllByOwner lists a user's tasks, most recent first.
func (r *TaskRepository) FindAllByOwner(ctx context.Context, username string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("username = ?", username).
		Order("id DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindAllByOwnerAndCompleted(ctx context.Context, username string, completed bool) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("username = ? AND completed = ?", username, completed).
		Order("id DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindAll(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list all tasks: %w", err)
	}
	return tasks, nil
}
