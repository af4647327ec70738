package fakeupstream

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
)

const defaultPageSize = 200

type zkillEntry struct {
	KillmailID int64 `json:"killmail_id"`
	ZKB        struct {
		Hash string `json:"hash"`
	} `json:"zkb"`
}

type dogmaAttribute struct {
	AttributeID int64   `json:"attribute_id"`
	Value       float64 `json:"value"`
}

type typeBody struct {
	TypeID          int64            `json:"type_id"`
	Name            string           `json:"name"`
	DogmaAttributes []dogmaAttribute `json:"dogma_attributes"`
}

// Server answers zKillboard and ESI requests from a Universe.
type Server struct {
	u        *Universe
	pageSize int

	mu     sync.Mutex
	faults []int

	requests atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithPageSize sets how many kills a zKillboard page holds.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewServer serves u.
func NewServer(u *Universe, opts ...Option) *Server {
	s := &Server{u: u, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNext answers the next len(statuses) requests with the given status codes.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, statuses...)
}

// Requests is the number of requests served so far, faults included.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// Handler returns the routes of both upstreams on one mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/kills/characterID/{id}/kills/{$}", s.handlePage)
	mux.HandleFunc("GET /api/kills/characterID/{id}/kills/page/{page}/{$}", s.handlePage)
	mux.HandleFunc("GET /api/kills/killID/{id}/{$}", s.handleKillID)
	mux.HandleFunc("GET /latest/killmails/{id}/{hash}/{$}", s.handleKillmail)
	mux.HandleFunc("GET /latest/universe/types/{id}/{$}", s.handleType)
	mux.HandleFunc("POST /latest/universe/ids/{$}", s.handleIDs)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if status, ok := s.nextFault(); ok {
			http.Error(w, http.StatusText(status), status)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (s *Server) nextFault() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.faults) == 0 {
		return 0, false
	}
	status := s.faults[0]
	s.faults = s.faults[1:]
	return status, true
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	page := int64(1)
	if r.PathValue("page") != "" {
		if page, ok = pathInt(w, r, "page"); !ok {
			return
		}
	}
	kills := s.u.kills[id]
	from := int(page-1) * s.pageSize
	out := []zkillEntry{}
	for i := from; i >= 0 && i < len(kills) && i < from+s.pageSize; i++ {
		out = append(out, s.entry(kills[i]))
	}
	writeJSON(w, out)
}

func (s *Server) handleKillID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	out := []zkillEntry{}
	if _, found := s.u.Killmails[id]; found {
		out = append(out, s.entry(id))
	}
	writeJSON(w, out)
}

func (s *Server) handleKillmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	km, found := s.u.Killmails[id]
	if !found || s.u.Hashes[id] != r.PathValue("hash") {
		http.Error(w, `{"error":"Invalid killmail_id and/or killmail_hash"}`, http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, km)
}

func (s *Server) handleType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	t, found := s.u.Types[id]
	if !found {
		http.Error(w, `{"error":"Type not found!"}`, http.StatusNotFound)
		return
	}
	body := typeBody{TypeID: t.ID, Name: t.Name, DogmaAttributes: []dogmaAttribute{}}
	if t.Slots != [3]int{} {
		body.DogmaAttributes = append(body.DogmaAttributes,
			dogmaAttribute{AttributeID: attrLowSlots, Value: float64(t.Slots[0])},
			dogmaAttribute{AttributeID: attrMidSlots, Value: float64(t.Slots[1])},
			dogmaAttribute{AttributeID: attrHighSlots, Value: float64(t.Slots[2])})
	}
	if t.MetaLevel != nil {
		body.DogmaAttributes = append(body.DogmaAttributes,
			dogmaAttribute{AttributeID: attrMetaLevel, Value: *t.MetaLevel})
	}
	writeJSON(w, body)
}

func (s *Server) handleIDs(w http.ResponseWriter, r *http.Request) {
	var names []string
	if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := struct {
		Characters []Character `json:"characters,omitempty"`
	}{}
	for _, name := range names {
		if c, ok := s.u.Character(name); ok {
			resp.Characters = append(resp.Characters, c)
		}
	}
	writeJSON(w, resp)
}

func (s *Server) entry(id int64) zkillEntry {
	e := zkillEntry{KillmailID: id}
	e.ZKB.Hash = s.u.Hashes[id]
	return e
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		http.Error(w, "bad "+name, http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
