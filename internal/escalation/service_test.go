package escalation

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/testutil"
)

func names(t *testing.T, s *Service, all bool) []string {
	t.Helper()
	list := s.Visible
	if all {
		list = s.All
	}
	contacts, err := list(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.Name)
	}
	return out
}

func TestServiceAddStartsHiddenAndIgnoresDuplicates(t *testing.T) {
	s := NewService(repository.NewEscalationRepository(testutil.NewDB(t)), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "Alice", "555-0100"))
	require.NoError(t, s.Add(ctx, "Alice", "555-0100"))
	require.NoError(t, s.Add(ctx, "Bob", "555-0101"))

	assert.Equal(t, []string{"Alice", "Bob"}, names(t, s, true))
	assert.Empty(t, names(t, s, false))
}

func TestServiceModify(t *testing.T) {
	s := NewService(repository.NewEscalationRepository(testutil.NewDB(t)), zerolog.Nop())
	ctx := context.Background()
	for _, n := range []string{"Alice", "Bob", "Carol"} {
		require.NoError(t, s.Add(ctx, n, n+"@example.com"))
	}
	all, err := s.All(ctx)
	require.NoError(t, err)
	alice, bob, carol := all[0].ID, all[1].ID, all[2].ID

	require.NoError(t, s.Modify(ctx, alice, ActionDown))
	assert.Equal(t, []string{"Bob", "Alice", "Carol"}, names(t, s, true))

	require.NoError(t, s.Modify(ctx, bob, ActionUp))
	assert.Equal(t, []string{"Bob", "Alice", "Carol"}, names(t, s, true))

	require.NoError(t, s.Modify(ctx, carol, ActionShow))
	require.NoError(t, s.Modify(ctx, bob, ActionShow))
	assert.Equal(t, []string{"Bob", "Carol"}, names(t, s, false))

	require.NoError(t, s.Modify(ctx, bob, ActionHide))
	assert.Equal(t, []string{"Carol"}, names(t, s, false))

	require.NoError(t, s.Modify(ctx, alice, ActionDelete))
	contacts, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, 1, contacts[0].Order)
	assert.Equal(t, 2, contacts[1].Order)

	assert.ErrorIs(t, s.Modify(ctx, alice, ActionHide), sql.ErrNoRows)
	assert.ErrorIs(t, s.Modify(ctx, bob, "sideways"), ErrUnknownAction)
}
