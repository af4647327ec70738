package upstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/killpoints/internal/adapters/upstream"
	"github.com/okian/killpoints/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	*httptest.Server
	mu    sync.Mutex
	hits  map[string]int
	route map[string]func(w http.ResponseWriter, r *http.Request, hit int)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		hits:  map[string]int{},
		route: map[string]func(http.ResponseWriter, *http.Request, int){},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		hit := f.hits[r.URL.Path]
		h, ok := f.route[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r, hit)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) handle(path string, h func(w http.ResponseWriter, r *http.Request, hit int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.route[path] = h
}

func (f *fakeServer) json(path string, body string) {
	f.handle(path, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
}

func (f *fakeServer) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func newClient(f *fakeServer, opts ...upstream.Option) *upstream.Client {
	base := []upstream.Option{
		upstream.WithZKillboardURL(f.URL + "/"),
		upstream.WithESIURL(f.URL),
		upstream.WithBackoff(time.Millisecond, 5*time.Millisecond),
		upstream.WithMaxRetries(3),
		upstream.WithZKillboardRate(1000, 100),
		upstream.WithESIRate(1000, 100),
	}
	return upstream.New(append(base, opts...)...)
}

func TestPage(t *testing.T) {
	f := newFakeServer(t)
	f.json("/api/kills/characterID/42/kills/", `[
		{"killmail_id": 100, "zkb": {"hash": "aaa"}},
		{"killmail_id": 300, "zkb": {"hash": "ccc"}},
		{"killmail_id": 200, "zkb": {"hash": "CCP VERIFIED"}}
	]`)
	f.json("/api/kills/characterID/42/kills/page/2/", `{"50": "eee", "70": "fff"}`)
	c := newClient(f)
	ctx := context.Background()

	refs, err := c.Page(ctx, 42, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.KillRef{{ID: 300, Hash: "ccc"}, {ID: 100, Hash: "aaa"}}, refs)

	_, err = c.Page(ctx, 42, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("/api/kills/characterID/42/kills/"), "second call should hit the page cache")

	refs, err = c.Page(ctx, 42, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.KillRef{{ID: 70, Hash: "fff"}, {ID: 50, Hash: "eee"}}, refs)
}

func TestPageExpiry(t *testing.T) {
	f := newFakeServer(t)
	f.json("/api/kills/characterID/7/kills/", `[]`)
	c := newClient(f, upstream.WithPageTTL(10*time.Millisecond))

	_, err := c.Page(context.Background(), 7, 1)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = c.Page(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("/api/kills/characterID/7/kills/"))
}

func TestRetries(t *testing.T) {
	t.Run("rate limited then ok", func(t *testing.T) {
		f := newFakeServer(t)
		f.handle("/api/kills/characterID/1/kills/", func(w http.ResponseWriter, _ *http.Request, hit int) {
			if hit < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = io.WriteString(w, `[{"killmail_id": 1, "zkb": {"hash": "x"}}]`)
		})
		refs, err := newClient(f).Page(context.Background(), 1, 1)
		require.NoError(t, err)
		assert.Len(t, refs, 1)
		assert.Equal(t, 3, f.count("/api/kills/characterID/1/kills/"))
	})

	t.Run("malformed then ok", func(t *testing.T) {
		f := newFakeServer(t)
		f.handle("/api/kills/characterID/1/kills/", func(w http.ResponseWriter, _ *http.Request, hit int) {
			if hit == 1 {
				_, _ = io.WriteString(w, `<html>busy</html>`)
				return
			}
			_, _ = io.WriteString(w, `[]`)
		})
		_, err := newClient(f).Page(context.Background(), 1, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, f.count("/api/kills/characterID/1/kills/"))
	})

	t.Run("exhausted budget escalates", func(t *testing.T) {
		f := newFakeServer(t)
		f.handle("/api/kills/characterID/1/kills/", func(w http.ResponseWriter, _ *http.Request, _ int) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		_, err := newClient(f).Page(context.Background(), 1, 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, upstream.ErrDataUnavailable))
		assert.True(t, errors.Is(err, upstream.ErrRateLimited))
		assert.Equal(t, 4, f.count("/api/kills/characterID/1/kills/"))
	})

	t.Run("not found is final", func(t *testing.T) {
		f := newFakeServer(t)
		f.handle("/latest/killmails/5/bad/", func(w http.ResponseWriter, _ *http.Request, _ int) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		})
		_, err := newClient(f).Killmail(context.Background(), 5, "bad")
		require.Error(t, err)
		assert.True(t, errors.Is(err, upstream.ErrDataUnavailable))
		assert.True(t, errors.Is(err, upstream.ErrNotFound))
		assert.Equal(t, 1, f.count("/latest/killmails/5/bad/"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFakeServer(t)
		f.handle("/api/kills/characterID/1/kills/", func(w http.ResponseWriter, _ *http.Request, _ int) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newClient(f).Page(ctx, 1, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestKillmail(t *testing.T) {
	f := newFakeServer(t)
	f.json("/latest/killmails/9/abc/", `{
		"killmail_id": 9,
		"killmail_time": "2024-02-03T04:05:06Z",
		"solar_system_id": 30001000,
		"victim": {"ship_type_id": 587},
		"attackers": [{"character_id": 1, "ship_type_id": 2}]
	}`)
	f.json("/latest/killmails/10/def/", `{"killmail_id": 10, "victim": {"ship_type_id": 587}, "attackers": []}`)

	fetchTime := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := newClient(f, upstream.WithClock(func() time.Time { return fetchTime }))
	ctx := context.Background()

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km, err := c.Killmail(ctx, 9, "abc")
			if err != nil || km.ID != 9 {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, f.count("/latest/killmails/9/abc/"), "concurrent and repeated fetches share one request")

	km, err := c.Killmail(ctx, 9, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", km.Hash)
	assert.Equal(t, int64(30001000), km.SolarSystemID)
	assert.True(t, km.Attackers[0].Is(1))

	stamped, err := c.Killmail(ctx, 10, "def")
	require.NoError(t, err)
	assert.Equal(t, fetchTime, stamped.Time)
}

func TestTypeData(t *testing.T) {
	f := newFakeServer(t)
	f.json("/latest/universe/types/587/", `{
		"name": "Rifter",
		"dogma_attributes": [
			{"attribute_id": 12, "value": 3},
			{"attribute_id": 13, "value": 3},
			{"attribute_id": 14, "value": 4}
		]
	}`)
	f.json("/latest/universe/types/2881/", `{
		"name": "Warp Disruptor II",
		"dogma_attributes": [{"attribute_id": 633, "value": 5}]
	}`)
	c := newClient(f)
	ctx := context.Background()

	slots, err := c.Slots(ctx, 587)
	require.NoError(t, err)
	assert.Equal(t, 10, slots)

	name, err := c.TypeName(ctx, 587)
	require.NoError(t, err)
	assert.Equal(t, "Rifter", name)

	_, known, err := c.MetaLevel(ctx, 587)
	require.NoError(t, err)
	assert.False(t, known)

	level, known, err := c.MetaLevel(ctx, 2881)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 5.0, level)

	assert.Equal(t, 1, f.count("/latest/universe/types/587/"), "type data is memoised")
}

func TestKillHash(t *testing.T) {
	f := newFakeServer(t)
	f.json("/api/kills/killID/77/", `[{"killmail_id": 77, "zkb": {"hash": "h77"}}]`)
	f.json("/api/kills/killID/78/", `[]`)
	c := newClient(f)

	h, err := c.KillHash(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, "h77", h)

	_, err = c.KillHash(context.Background(), 78)
	assert.ErrorIs(t, err, upstream.ErrDataUnavailable)
}

func TestResolveCharacter(t *testing.T) {
	f := newFakeServer(t)
	f.handle("/latest/universe/ids/", func(w http.ResponseWriter, r *http.Request, _ int) {
		var names []string
		_ = json.NewDecoder(r.Body).Decode(&names)
		if r.Method != http.MethodPost || len(names) != 1 || names[0] != "Some Pilot" {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_, _ = io.WriteString(w, `{"characters": [{"id": 5, "name": "Some Pilot"}, {"id": 9, "name": "Some Pilot"}]}`)
	})
	c := newClient(f)
	ctx := context.Background()

	id, err := c.ResolveCharacter(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), id)

	id, err = c.ResolveCharacter(ctx, "Some Pilot")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	_, err = c.ResolveCharacter(ctx, "Nobody")
	assert.ErrorIs(t, err, upstream.ErrUnknownCharacter)
}
