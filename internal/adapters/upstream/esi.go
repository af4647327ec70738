package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/killpoints/internal/domain/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dogma attribute ids.
const (
	attrLowSlots   = 12
	attrMidSlots   = 13
	attrHighSlots  = 14
	attrMetaLevel  = 633
	attrMetaLevel2 = 1692
)

type dogmaAttribute struct {
	AttributeID int64   `json:"attribute_id"`
	Value       float64 `json:"value"`
}

type typeInfo struct {
	Name            string           `json:"name"`
	DogmaAttributes []dogmaAttribute `json:"dogma_attributes"`
}

// Killmail fetches the details of a kill. Results are memoised by id.
// A killmail without a timestamp is stamped with the fetch time.
func (c *Client) Killmail(ctx context.Context, id int64, hash string) (model.Killmail, error) {
	if km, ok := c.killmails.Get(id); ok {
		return km, nil
	}
	return shared(c, "km:"+itoa(id), func() (model.Killmail, error) {
		if km, ok := c.killmails.Get(id); ok {
			return km, nil
		}
		ctx, span := c.tracer.Start(ctx, "upstream.Killmail", trace.WithAttributes(attribute.Int64("kill_id", id)))
		defer span.End()

		var km model.Killmail
		err := c.fetch(ctx, request{
			upstream: upstreamESI,
			limiter:  c.esiLimiter,
			method:   http.MethodGet,
			url:      c.esi("/latest/killmails/" + itoa(id) + "/" + hash + "/"),
		}, &km)
		if err != nil {
			span.RecordError(err)
			return model.Killmail{}, err
		}
		if km.ID == 0 {
			km.ID = id
		}
		km.Hash = hash
		if km.Time.IsZero() {
			km.Time = c.now().UTC()
		}
		c.killmails.Add(id, km)
		return km, nil
	})
}

func (c *Client) typeInfo(ctx context.Context, typeID int64) (typeInfo, error) {
	if info, ok := c.types.Get(typeID); ok {
		return info, nil
	}
	return shared(c, "type:"+itoa(typeID), func() (typeInfo, error) {
		if info, ok := c.types.Get(typeID); ok {
			return info, nil
		}
		var info typeInfo
		err := c.fetch(ctx, request{
			upstream: upstreamESI,
			limiter:  c.esiLimiter,
			method:   http.MethodGet,
			url:      c.esi("/latest/universe/types/" + itoa(typeID) + "/"),
		}, &info)
		if err != nil {
			return typeInfo{}, err
		}
		c.types.Add(typeID, info)
		return info, nil
	})
}

// MetaLevel returns the meta level of an item type. known is false when the
// type carries no meta level attribute.
func (c *Client) MetaLevel(ctx context.Context, typeID int64) (float64, bool, error) {
	info, err := c.typeInfo(ctx, typeID)
	if err != nil {
		return 0, false, err
	}
	for _, a := range info.DogmaAttributes {
		if a.AttributeID == attrMetaLevel || a.AttributeID == attrMetaLevel2 {
			return a.Value, true, nil
		}
	}
	return 0, false, nil
}

// Slots returns the total low, mid and high slots of a ship type.
func (c *Client) Slots(ctx context.Context, shipTypeID int64) (int, error) {
	info, err := c.typeInfo(ctx, shipTypeID)
	if err != nil {
		return 0, err
	}
	var slots int
	for _, a := range info.DogmaAttributes {
		switch a.AttributeID {
		case attrLowSlots, attrMidSlots, attrHighSlots:
			slots += int(a.Value)
		}
	}
	return slots, nil
}

// TypeName returns the display name of a type.
func (c *Client) TypeName(ctx context.Context, typeID int64) (string, error) {
	info, err := c.typeInfo(ctx, typeID)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

type idsResponse struct {
	Characters []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"characters"`
}

// ResolveCharacter turns a character id or exact name into an id.
// When several characters match, the newest (highest id) wins.
func (c *Client) ResolveCharacter(ctx context.Context, nameOrID string) (int64, error) {
	nameOrID = strings.TrimSpace(nameOrID)
	if id, err := strconv.ParseInt(nameOrID, 10, 64); err == nil {
		return id, nil
	}
	if nameOrID == "" {
		return 0, ErrUnknownCharacter
	}
	body, err := json.Marshal([]string{nameOrID})
	if err != nil {
		return 0, err
	}
	var resp idsResponse
	err = c.fetch(ctx, request{
		upstream: upstreamESI,
		limiter:  c.esiLimiter,
		method:   http.MethodPost,
		url:      c.esi("/latest/universe/ids/"),
		body:     body,
	}, &resp)
	if err != nil {
		return 0, err
	}
	var best int64
	for _, ch := range resp.Characters {
		if ch.ID > best {
			best = ch.ID
		}
	}
	if best == 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCharacter, nameOrID)
	}
	return best, nil
}
