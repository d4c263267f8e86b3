package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snippetlab/collab-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	projects map[string]*domain.Project
	roles    map[string]string // projectID -> role для userID=collabUser
	collab   int64
	err      error
}

func (f *fakeStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	return p, nil
}

func (f *fakeStore) CollaboratorRole(ctx context.Context, projectID string, userID int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if userID == f.collab {
		return f.roles[projectID], nil
	}
	return "", nil
}

func TestProjectEvaluator_Allow(t *testing.T) {
	store := &fakeStore{
		projects: map[string]*domain.Project{
			"pub":  {ID: "pub", OwnerID: 1, Visibility: domain.VisibilityPublic},
			"priv": {ID: "priv", OwnerID: 1, Visibility: domain.VisibilityPrivate},
		},
		roles:  map[string]string{"priv": domain.RoleEditor},
		collab: 2,
	}
	e := NewProjectEvaluator(store)
	ctx := context.Background()

	tests := []struct {
		name      string
		userID    int64
		projectID string
		wantErr   error
	}{
		{"owner on private", 1, "priv", nil},
		{"collaborator on private", 2, "priv", nil},
		{"stranger on private", 3, "priv", domain.ErrAccessDenied},
		{"stranger on public", 3, "pub", nil},
		{"unknown project", 1, "ghost", domain.ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Allow(ctx, tt.userID, tt.projectID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

type slowEvaluator struct{}

// Allow висит до отмены контекста, как зависший evaluator.
func (slowEvaluator) Allow(ctx context.Context, userID int64, projectID string) error {
	<-ctx.Done()
	return ctx.Err()
}

type failingEvaluator struct{}

func (failingEvaluator) Allow(ctx context.Context, userID int64, projectID string) error {
	return errors.New("pg: connection refused")
}

func TestGate_FailClosed(t *testing.T) {
	t.Run("timeout is denied", func(t *testing.T) {
		g := NewGate(slowEvaluator{}, 20*time.Millisecond)

		start := time.Now()
		err := g.Allow(context.Background(), 1, "proj-1")
		require.ErrorIs(t, err, domain.ErrAccessDenied)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("backend error is denied", func(t *testing.T) {
		g := NewGate(failingEvaluator{}, time.Second)
		assert.ErrorIs(t, g.Allow(context.Background(), 1, "proj-1"), domain.ErrAccessDenied)
	})

	t.Run("allow passes through", func(t *testing.T) {
		store := &fakeStore{projects: map[string]*domain.Project{
			"pub": {ID: "pub", OwnerID: 1, Visibility: domain.VisibilityPublic},
		}}
		g := NewGate(NewProjectEvaluator(store), time.Second)
		assert.NoError(t, g.Allow(context.Background(), 5, "pub"))
	})
}
