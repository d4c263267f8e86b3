package postgres

import (
	"context"
	"errors"

	"github.com/snippetlab/collab-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProjectRepository читает видимость проектов и роли коллабораторов.
// Таблицы принадлежат основному snippet API; relay их только читает.
type ProjectRepository struct {
	db *pgxpool.Pool
}

func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	query := `SELECT id, owner_id, visibility, created_at FROM projects WHERE id=$1`
	err := r.db.QueryRow(ctx, query, id).
		Scan(&p.ID, &p.OwnerID, &p.Visibility, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CollaboratorRole возвращает роль пользователя в проекте; "" — не коллаборатор.
func (r *ProjectRepository) CollaboratorRole(ctx context.Context, projectID string, userID int64) (string, error) {
	var role string
	err := r.db.QueryRow(ctx,
		`SELECT role FROM project_collaborators WHERE project_id=$1 AND user_id=$2`,
		projectID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return role, nil
}
