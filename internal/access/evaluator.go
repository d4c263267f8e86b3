package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/snippetlab/collab-service/internal/domain"
)

// Evaluator решает, может ли пользователь войти в комнату (= проект).
// nil — доступ разрешён, domain.ErrAccessDenied — запрещён.
type Evaluator interface {
	Allow(ctx context.Context, userID int64, projectID string) error
}

// ProjectStore реализуется postgres.ProjectRepository.
type ProjectStore interface {
	Get(ctx context.Context, id string) (*domain.Project, error)
	CollaboratorRole(ctx context.Context, projectID string, userID int64) (string, error)
}

// ProjectEvaluator — боевая реализация поверх postgres:
// владелец, коллаборатор или любой пользователь для публичного проекта.
type ProjectEvaluator struct {
	projects ProjectStore
}

func NewProjectEvaluator(projects ProjectStore) *ProjectEvaluator {
	return &ProjectEvaluator{projects: projects}
}

func (e *ProjectEvaluator) Allow(ctx context.Context, userID int64, projectID string) error {
	p, err := e.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) {
			// несуществующий проект неотличим от запрещённого
			return domain.ErrAccessDenied
		}
		return err
	}

	if p.OwnerID == userID || p.Visibility == domain.VisibilityPublic {
		return nil
	}

	role, err := e.projects.CollaboratorRole(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if role == "" {
		return domain.ErrAccessDenied
	}

	return nil
}

// Gate оборачивает Evaluator дедлайном. Таймаут и любая ошибка evaluator'а
// трактуются как отказ (fail closed).
type Gate struct {
	inner   Evaluator
	timeout time.Duration
}

func NewGate(inner Evaluator, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Gate{inner: inner, timeout: timeout}
}

func (g *Gate) Allow(ctx context.Context, userID int64, projectID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.inner.Allow(ctx, userID, projectID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrAccessDenied):
		return domain.ErrAccessDenied
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("access evaluator timeout", "user", userID, "project", projectID)
		return domain.ErrAccessDenied
	default:
		slog.Error("access evaluator failed", "user", userID, "project", projectID, "err", err)
		return domain.ErrAccessDenied
	}
}
