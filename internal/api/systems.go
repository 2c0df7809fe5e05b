package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/history"
	"github.com/nerrad567/que-core/internal/poller"
	"github.com/nerrad567/que-core/internal/system"
)

// SystemView is the JSON form of a system.
type SystemView struct {
	system.Info
	Mode        system.Mode    `json:"mode"`
	Attributes  int            `json:"attributes"`
	Zones       int            `json:"zones"`
	PopulatedAt *time.Time     `json:"populated_at,omitempty"`
	Populates   int            `json:"populates"`
	Poll        *poller.Status `json:"poll,omitempty"`
}

// AttributeView is the JSON form of an attribute.
type AttributeView struct {
	Path      string          `json:"path"`
	Leaf      string          `json:"leaf"`
	Kind      string          `json:"kind"`
	Value     attribute.Value `json:"value"`
	Mutable   bool            `json:"mutable"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s *Server) systemView(sys *system.System) SystemView {
	v := SystemView{
		Info:       sys.Info(),
		Mode:       sys.Mode(),
		Attributes: sys.Registry().Len(),
	}
	for _, z := range sys.Zones() {
		if z.Exists() {
			v.Zones++
		}
	}
	if at, n := sys.PopulatedAt(); n > 0 {
		v.PopulatedAt, v.Populates = &at, n
	}
	if st, ok := s.systems.Status(sys.Serial()); ok {
		v.Poll = &st
	}
	return v
}

func attributeView(a *attribute.Attribute) AttributeView {
	v := a.Value()
	return AttributeView{
		Path:      a.Path(),
		Leaf:      a.Leaf(),
		Kind:      v.Kind().String(),
		Value:     v,
		Mutable:   a.Mutable(),
		UpdatedAt: a.UpdatedAt(),
	}
}

func (s *Server) handleListSystems(w http.ResponseWriter, _ *http.Request) {
	systems := s.systems.Systems()
	views := make([]SystemView, 0, len(systems))
	for _, sys := range systems {
		views = append(views, s.systemView(sys))
	}
	writeJSON(w, http.StatusOK, map[string]any{"systems": views, "count": len(views)})
}

func (s *Server) handleGetSystem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.systemView(systemFrom(r.Context())))
}

// handleListZones returns every zone; ?existing=true keeps only zones the
// controller reports as installed.
func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	existingOnly := r.URL.Query().Get("existing") == "true"
	zones := systemFrom(r.Context()).Zones()
	out := make([]system.ZoneSnapshot, 0, len(zones))
	for _, z := range zones {
		if existingOnly && !z.Exists() {
			continue
		}
		out = append(out, z.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": out, "count": len(out)})
}

func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, "zone index must be an integer")
		return
	}
	z, err := systemFrom(r.Context()).Zone(index)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, z.Snapshot())
}

// handleListAttributes lists attributes, filtered by ?prefix=, or returns a
// single one for ?path=.
func (s *Server) handleListAttributes(w http.ResponseWriter, r *http.Request) {
	reg := systemFrom(r.Context()).Registry()

	if path := r.URL.Query().Get("path"); path != "" {
		a, ok := reg.Get(path)
		if !ok {
			writeNotFound(w, "unknown attribute: "+path)
			return
		}
		writeJSON(w, http.StatusOK, attributeView(a))
		return
	}

	attrs := reg.List(r.URL.Query().Get("prefix"))
	out := make([]AttributeView, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, attributeView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"attributes": out, "count": len(out)})
}

// handleSendCommand builds and sends a settings change:
//
//	{"command": "power", "value": true}
//	{"command": "cool_setpoint", "zone": 1, "value": 23}
//	{"path": "UserAirconSettings.Mode", "value": "HEAT"}
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req poller.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sys := systemFrom(r.Context())
	cmd, err := s.executor.Execute(r.Context(), sys.Serial(), req)
	if err != nil {
		writeCommandError(w, err)
		return
	}

	p, _ := principalFrom(r.Context())
	s.logger.Info("command accepted", "serial", sys.Serial(), "command_id", cmd.ID, "key", cmd.Key, "by", p.Name)
	writeJSON(w, http.StatusAccepted, cmd)
}

// handleHistory returns attribute transitions, newest first.
// Query: path, prefix, since (RFC 3339), limit.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is disabled")
		return
	}

	qs := r.URL.Query()
	q := history.Query{
		Serial: systemFrom(r.Context()).Serial(),
		Path:   qs.Get("path"),
		Prefix: qs.Get("prefix"),
	}
	if v := qs.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		q.Since = since
	}
	limit, ok := parseLimit(w, qs.Get("limit"))
	if !ok {
		return
	}
	q.Limit = limit

	entries, err := s.history.History(r.Context(), q)
	if err != nil {
		s.logger.Error("querying history", "serial", q.Serial, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries, "count": len(entries)})
}

// handleCommandLog returns recent commands for the system, newest first.
func (s *Server) handleCommandLog(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is disabled")
		return
	}
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}

	serial := systemFrom(r.Context()).Serial()
	records, err := s.history.Commands(r.Context(), serial, limit)
	if err != nil {
		s.logger.Error("querying command log", "serial", serial, "error", err)
		writeInternalError(w, "failed to query command log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": records, "count": len(records)})
}

// parseLimit accepts an empty or positive integer limit.
func parseLimit(w http.ResponseWriter, v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		writeBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
