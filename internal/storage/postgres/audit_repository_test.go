package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/subjectboard/server/internal/audit"
)

func TestAuditRepositoryAppendAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := store.Audit()

	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	first := audit.Entry{
		ID:          mustID(),
		Timestamp:   base,
		Operation:   audit.OperationCreate,
		ContentType: "text",
		ContentID:   mustID(),
		OldValues:   []string{"", ""},
		NewValues:   []string{"Intro", "Hello"},
		Fingerprint: "203.0.113.7",
	}
	second := audit.Entry{
		ID:          mustID(),
		Timestamp:   base.Add(time.Minute),
		Operation:   audit.OperationUpdate,
		ContentType: "text",
		ContentID:   first.ContentID,
		ParentGroup: mustID(),
		OldValues:   []string{"Intro", "Hello"},
		NewValues:   []string{"Intro", ""},
	}
	require.NoError(t, repo.AppendAuditEntry(ctx, first))
	require.NoError(t, repo.AppendAuditEntry(ctx, second))
	// Redelivery of the same entry is a no-op.
	require.NoError(t, repo.AppendAuditEntry(ctx, second))

	result, err := repo.ListAuditEntries(ctx, audit.Page{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, result.NextCursor)
	entries := result.Entries
	require.Len(t, entries, 2)
	require.Equal(t, second.ID, entries[0].ID)
	require.Equal(t, audit.OperationUpdate, entries[0].Operation)
	require.Equal(t, []string{"Intro", ""}, entries[0].NewValues)
	require.Equal(t, first.ID, entries[1].ID)
	require.Equal(t, "203.0.113.7", entries[1].Fingerprint)
	require.True(t, base.Equal(entries[1].Timestamp))

	limited, err := repo.ListAuditEntries(ctx, audit.Page{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited.Entries, 1)
	require.NotEmpty(t, limited.NextCursor)
}

func TestAuditRepositoryPaging(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Audit()

	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	var want []string
	for i := range 5 {
		entry := audit.Entry{
			ID:          mustID(),
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Operation:   audit.OperationCreate,
			ContentType: "text",
			ContentID:   mustID(),
		}
		// Two entries share a timestamp so the id breaks the tie.
		if i == 4 {
			entry.Timestamp = base.Add(3 * time.Second)
		}
		require.NoError(t, repo.AppendAuditEntry(ctx, entry))
		want = append(want, entry.ID)
	}

	var got []string
	page := audit.Page{Limit: 2}
	for {
		result, err := repo.ListAuditEntries(ctx, page)
		require.NoError(t, err)
		require.LessOrEqual(t, len(result.Entries), 2)
		for _, e := range result.Entries {
			got = append(got, e.ID)
		}
		if result.NextCursor == "" {
			break
		}
		page.After = result.NextCursor
	}
	require.Len(t, got, 5)
	require.ElementsMatch(t, want, got)
	require.Equal(t, want[0], got[4], "oldest entry comes last")
}

func TestAuditRepositoryNilTuples(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry := audit.Entry{
		ID:          mustID(),
		Timestamp:   time.Now().UTC(),
		Operation:   audit.OperationDelete,
		ContentType: "link",
		ContentID:   mustID(),
	}
	require.NoError(t, store.Audit().AppendAuditEntry(ctx, entry))

	result, err := store.Audit().ListAuditEntries(ctx, audit.Page{Limit: 5})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	require.Equal(t, []string{}, result.Entries[0].OldValues)
	require.Equal(t, []string{}, result.Entries[0].NewValues)
}
