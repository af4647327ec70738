package fakeupstream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/killpoints/internal/adapters/rulesource/yamlfile"
	"github.com/okian/killpoints/internal/adapters/upstream"
	"github.com/okian/killpoints/internal/domain/rules"
	"github.com/okian/killpoints/internal/fakeupstream"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func generate() *fakeupstream.Universe {
	return fakeupstream.Generate(fakeupstream.Config{
		Seed:              7,
		Characters:        4,
		KillsPerCharacter: 15,
		UnlistedShips:     1,
		Now:               now,
	})
}

func serve(t *testing.T, u *fakeupstream.Universe, opts ...fakeupstream.Option) (*fakeupstream.Server, *upstream.Client) {
	t.Helper()
	srv := fakeupstream.NewServer(u, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client := upstream.New(
		upstream.WithZKillboardURL(ts.URL),
		upstream.WithESIURL(ts.URL),
		upstream.WithBackoff(time.Millisecond, 5*time.Millisecond),
		upstream.WithMaxRetries(3),
		upstream.WithZKillboardRate(1000, 100),
		upstream.WithESIRate(1000, 100),
	)
	return srv, client
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, b := generate(), generate()
	if diff := cmp.Diff(a.Killmails, b.Killmails); diff != "" {
		t.Fatalf("same seed produced different kills (-a +b):\n%s", diff)
	}
	assert.Equal(t, a.Hashes, b.Hashes)
	assert.Equal(t, a.Characters, b.Characters)
}

func TestGenerateShape(t *testing.T) {
	u := generate()
	require.Len(t, u.Characters, 4)

	for _, c := range u.Characters {
		kills := u.KillsOf(c.ID)
		assert.GreaterOrEqual(t, len(kills), 15, "character %d", c.ID)
		for i := 1; i < len(kills); i++ {
			prev, cur := u.Killmails[kills[i-1]], u.Killmails[kills[i]]
			assert.False(t, cur.Time.After(prev.Time), "kills of %d must be newest first", c.ID)
		}
		for _, id := range kills {
			km := u.Killmails[id]
			assert.False(t, km.Time.After(now))
			assert.True(t, km.Time.After(now.Add(-61*24*time.Hour)))
		}
	}

	weights := u.Weights()
	for _, c := range rules.Categories() {
		assert.Len(t, weights[c], 12, c.String())
	}
	for id, base := range weights[rules.Base] {
		assert.GreaterOrEqual(t, weights[rules.RiskAdjusted][id], base, "risk weight of %d", id)
	}
}

func TestServerWithClient(t *testing.T) {
	ctx := context.Background()
	u := generate()
	_, client := serve(t, u, fakeupstream.WithPageSize(5))
	pilot := u.Characters[0]
	kills := u.KillsOf(pilot.ID)

	t.Run("pages", func(t *testing.T) {
		first, err := client.Page(ctx, pilot.ID, 1)
		require.NoError(t, err)
		require.Len(t, first, 5)

		var ids []int64
		for p := 1; ; p++ {
			refs, err := client.Page(ctx, pilot.ID, p)
			require.NoError(t, err)
			if len(refs) == 0 {
				break
			}
			for _, r := range refs {
				assert.Equal(t, u.Hashes[r.ID], r.Hash)
				ids = append(ids, r.ID)
			}
		}
		assert.ElementsMatch(t, kills, ids)
	})

	t.Run("killmail", func(t *testing.T) {
		id := kills[0]
		got, err := client.Killmail(ctx, id, u.Hashes[id])
		require.NoError(t, err)
		want := u.Killmails[id]
		want.Hash = u.Hashes[id]
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("killmail mismatch (-want +got):\n%s", diff)
		}

		_, err = client.Killmail(ctx, id+1_000_000, "nope")
		assert.ErrorIs(t, err, upstream.ErrNotFound)
	})

	t.Run("kill hash", func(t *testing.T) {
		h, err := client.KillHash(ctx, kills[0])
		require.NoError(t, err)
		assert.Equal(t, u.Hashes[kills[0]], h)
	})

	t.Run("dogma", func(t *testing.T) {
		ship := u.Types[u.Killmails[kills[0]].Victim.ShipTypeID]
		slots, err := client.Slots(ctx, ship.ID)
		require.NoError(t, err)
		assert.Equal(t, ship.Slots[0]+ship.Slots[1]+ship.Slots[2], slots)

		for _, item := range u.Killmails[kills[0]].Victim.Items {
			level, known, err := client.MetaLevel(ctx, item.TypeID)
			require.NoError(t, err)
			mod := u.Types[item.TypeID]
			assert.Equal(t, mod.MetaLevel != nil, known)
			if known {
				assert.Equal(t, *mod.MetaLevel, level)
			}
		}

		name, err := client.TypeName(ctx, ship.ID)
		require.NoError(t, err)
		assert.Equal(t, ship.Name, name)
	})

	t.Run("resolve character", func(t *testing.T) {
		id, err := client.ResolveCharacter(ctx, pilot.Name)
		require.NoError(t, err)
		assert.Equal(t, pilot.ID, id)

		_, err = client.ResolveCharacter(ctx, "Nobody At All Here")
		assert.ErrorIs(t, err, upstream.ErrUnknownCharacter)
	})
}

func TestServerFaults(t *testing.T) {
	u := generate()
	srv, client := serve(t, u)
	srv.FailNext(http.StatusTooManyRequests, http.StatusBadGateway)

	refs, err := client.Page(context.Background(), u.Characters[1].ID, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, refs)
	assert.Equal(t, int64(3), srv.Requests())
}

func TestWriteRules(t *testing.T) {
	u := generate()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, u.WriteRules(path, 3))

	src := yamlfile.New(path)
	for _, c := range rules.Categories() {
		got, err := src.Fetch(context.Background(), 3, c)
		require.NoError(t, err)
		assert.Equal(t, u.Weights()[c], got, c.String())
	}
}
