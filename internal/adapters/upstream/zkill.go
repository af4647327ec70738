package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/okian/killpoints/internal/domain/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type zkillEntry struct {
	KillmailID int64 `json:"killmail_id"`
	ZKB        struct {
		Hash string `json:"hash"`
	} `json:"zkb"`
}

// zkillPage accepts both shapes zKillboard serves: a list of entries or an id -> hash object.
type zkillPage []model.KillRef

func (p *zkillPage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var byID map[string]string
		if err := json.Unmarshal(data, &byID); err != nil {
			return err
		}
		refs := make([]model.KillRef, 0, len(byID))
		for k, hash := range byID {
			id, err := strconv.ParseInt(k, 10, 64)
			if err != nil {
				return fmt.Errorf("kill id %q: %w", k, err)
			}
			refs = append(refs, model.KillRef{ID: id, Hash: hash})
		}
		*p = refs
		return nil
	}
	var entries []zkillEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	refs := make([]model.KillRef, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, model.KillRef{ID: e.KillmailID, Hash: e.ZKB.Hash})
	}
	*p = refs
	return nil
}

// Page returns the kill refs of one zKillboard page of entityID's kills, newest first.
// Pages start at 1. Refs without a usable hash are dropped.
func (c *Client) Page(ctx context.Context, entityID int64, page int) ([]model.KillRef, error) {
	if page < 1 {
		page = 1
	}
	key := pageKey{entityID: entityID, page: page}
	if refs, ok := c.pages.Get(key); ok {
		return refs, nil
	}

	return shared(c, fmt.Sprintf("page:%d:%d", entityID, page), func() ([]model.KillRef, error) {
		if refs, ok := c.pages.Get(key); ok {
			return refs, nil
		}
		ctx, span := c.tracer.Start(ctx, "upstream.Page", trace.WithAttributes(
			attribute.Int64("entity_id", entityID),
			attribute.Int("page", page)))
		defer span.End()

		path := "/api/kills/characterID/" + itoa(entityID) + "/kills/"
		if page > 1 {
			path += "page/" + strconv.Itoa(page) + "/"
		}
		var raw zkillPage
		err := c.fetch(ctx, request{
			upstream: upstreamZKill,
			limiter:  c.zkillLimiter,
			method:   http.MethodGet,
			url:      c.zkill(path),
		}, &raw)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		refs := make([]model.KillRef, 0, len(raw))
		for _, r := range raw {
			if r.Verified() {
				refs = append(refs, r)
			}
		}
		slices.SortFunc(refs, func(a, b model.KillRef) int {
			switch {
			case a.ID > b.ID:
				return -1
			case a.ID < b.ID:
				return 1
			}
			return 0
		})
		c.pages.Add(key, refs)
		return refs, nil
	})
}

// KillHash looks up the hash of a kill by id.
func (c *Client) KillHash(ctx context.Context, killID int64) (string, error) {
	if h, ok := c.hashes.Get(killID); ok {
		return h, nil
	}
	return shared(c, "hash:"+itoa(killID), func() (string, error) {
		var entries []zkillEntry
		err := c.fetch(ctx, request{
			upstream: upstreamZKill,
			limiter:  c.zkillLimiter,
			method:   http.MethodGet,
			url:      c.zkill("/api/kills/killID/" + itoa(killID) + "/"),
		}, &entries)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 || !(model.KillRef{ID: killID, Hash: entries[0].ZKB.Hash}).Verified() {
			return "", fmt.Errorf("%w: %w: kill %d", ErrDataUnavailable, ErrNotFound, killID)
		}
		c.hashes.Add(killID, entries[0].ZKB.Hash)
		return entries[0].ZKB.Hash, nil
	})
}
