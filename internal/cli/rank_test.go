package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ADITIII0201/kith/internal/directory"
	"github.com/ADITIII0201/kith/internal/replica"
	"github.com/ADITIII0201/kith/internal/snapshot"
	"github.com/ADITIII0201/kith/internal/social"
)

// seedRankFixture writes a small graph where u-best shares both of the
// viewer's interests and u-good shares one, so the order is stable no
// matter when the test runs.
func seedRankFixture(t *testing.T, dbPath string) {
	t.Helper()
	dir, err := directory.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer dir.Close()

	ctx := context.Background()
	now := time.Now()
	users := []social.User{
		{ID: "u-me", Name: "Me", Interests: []string{"music", "travel"}, LastActiveAt: now},
		{ID: "u-best", Name: "Best Match", Interests: []string{"music", "travel"}, LastActiveAt: now},
		{ID: "u-good", Name: "Good Match", Interests: []string{"music", "chess"}, LastActiveAt: now},
	}
	for _, u := range users {
		require.NoError(t, dir.UpsertUser(ctx, u))
	}
}

func TestRankCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	seedRankFixture(t, dbPath)

	out, err := runCommand(t, "rank", "--db", dbPath, "--user", "u-me")
	require.NoError(t, err)
	assert.Contains(t, out, "Suggestions for u-me")

	best := strings.Index(out, "Best Match")
	good := strings.Index(out, "Good Match")
	require.GreaterOrEqual(t, best, 0)
	require.GreaterOrEqual(t, good, 0)
	assert.Less(t, best, good, "full interest overlap should rank first")
}

func TestRankJSONOutput(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	seedRankFixture(t, dbPath)

	out, err := runCommand(t, "--format", "json", "rank", "--db", dbPath, "--user", "u-me")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   RankResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "u-me", resp.Data.User)
	require.Len(t, resp.Data.Suggestions, 2)
	assert.Equal(t, "u-best", resp.Data.Suggestions[0].User.ID)
	assert.Equal(t, "u-good", resp.Data.Suggestions[1].User.ID)
}

func TestRankHonorsLimit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	seedRankFixture(t, dbPath)

	out, err := runCommand(t, "--format", "json", "rank", "--db", dbPath, "--user", "u-me", "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Data RankResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Suggestions, 1)
	assert.Equal(t, "u-best", resp.Data.Suggestions[0].User.ID)
}

func TestRankEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")

	out, err := runCommand(t, "rank", "--db", dbPath, "--user", "u-me")
	require.NoError(t, err)
	assert.Contains(t, out, "No suggestions for u-me")
}

// TestRankRespectsPersistedDismissals runs rank against a Badger
// snapshot store holding a document that already dismissed u-best.
func TestRankRespectsPersistedDismissals(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	seedRankFixture(t, dbPath)

	snapDir := filepath.Join(t.TempDir(), "snaps")
	store, err := snapshot.OpenBadger(snapshot.BadgerConfig{Path: snapDir})
	require.NoError(t, err)
	bridge := snapshot.NewBridge(store)
	doc := replica.New("actor-rank-test")
	doc, _ = doc.Change(time.Now(), func(c *replica.Change) {
		c.Dismiss("u-best")
	})
	bridge.Save(snapshot.Key("u-me"), doc)
	require.NoError(t, store.Close())

	cfgPath := filepath.Join(t.TempDir(), "kith.yaml")
	cfg := fmt.Sprintf("directory:\n  db: %s\nsnapshot:\n  dir: %s\n", dbPath, snapDir)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, err := runCommand(t, "rank", "--config", cfgPath, "--user", "u-me")
	require.NoError(t, err)
	assert.Contains(t, out, "Good Match")
	assert.NotContains(t, out, "Best Match")
}
