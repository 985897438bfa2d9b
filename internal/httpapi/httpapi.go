// Package httpapi implements the coordinator's read-mostly JSON HTTP
// surface (spec.md §6): session/group/breakpoint introspection plus a
// single POST endpoint for injecting a command the way an attached
// terminal would. It is deliberately plain net/http rather than the
// teacher's connect/gRPC stack — the surface this domain needs is a
// handful of small JSON reads, not an RPC service; the connect stack
// is instead reserved for the ambient health/reflection/metrics
// surface registered alongside it (see Mount).
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/USC-NSL/DDB/internal/cmdflow"
	"github.com/USC-NSL/DDB/internal/state"
)

// coordinatorServiceName is a synthetic service name registered with
// the health/reflection surface; the coordinator exposes no connect
// RPC services of its own, but operators still expect a
// grpc_health_v1-compatible check and a reflectable service list when
// probing from standard gRPC tooling.
const coordinatorServiceName = "ddb.coordinator.v1.CoordinatorService"

// errMissingSrc is returned when a source-indexed query omits ?src=.
var errMissingSrc = errors.New("httpapi: missing required query parameter \"src\"")

// errInternalCommand is returned when a client tries to inject a
// ":"-prefixed coordinator-internal command (e.g. ":sync-breakpoints"),
// which is reserved for the supervisor's own session-lifecycle logic.
var errInternalCommand = errors.New("httpapi: command is coordinator-internal")

// Surface serves the HTTP read surface over a Store/Router pair, and
// injects commands through the same Dispatch/HandlerContext pipeline a
// session's own input would use.
type Surface struct {
	store    *state.Store
	router   *cmdflow.Router
	parser   *cmdflow.InputCmdParser
	dispatch *cmdflow.Dispatch
	hc       *cmdflow.HandlerContext
}

// NewSurface constructs a Surface bound to the coordinator's shared
// handler context, dispatch table, and input parser.
func NewSurface(hc *cmdflow.HandlerContext, dispatch *cmdflow.Dispatch, parser *cmdflow.InputCmdParser) *Surface {
	return &Surface{store: hc.Store, router: hc.Router, parser: parser, dispatch: dispatch, hc: hc}
}

// Mount registers the read surface plus health, reflection, and
// Prometheus metrics endpoints onto mux, matching the teacher's
// MountFunc shape (transport/http.WithMount).
func (s *Surface) Mount(mux *http.ServeMux) error {
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /pcommands", s.handlePCommands)
	mux.HandleFunc("GET /groups", s.handleGroups)
	mux.HandleFunc("GET /src_to_grp_ids", s.handleSrcToGroupIDs)
	mux.HandleFunc("GET /src_to_grps", s.handleSrcToGroups)
	mux.HandleFunc("POST /send", s.handleSend)

	services := []string{coordinatorServiceName}
	checker := grpchealth.NewStaticChecker(services...)
	mux.Handle(grpchealth.NewHandler(checker))

	reflector := grpcreflect.NewStaticReflector(services...)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))

	mux.Handle("/metrics", promhttp.Handler())

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ---------------------------------------------------------------------------
// GET /status
// ---------------------------------------------------------------------------

type statusResponse struct {
	Sessions int `json:"sessions"`
}

func (s *Surface) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Sessions: s.store.SessionCount()})
}

// ---------------------------------------------------------------------------
// GET /sessions
// ---------------------------------------------------------------------------

type sessionResponse struct {
	SID     uint64           `json:"sid"`
	Tag     string           `json:"tag"`
	Status  string           `json:"status"`
	Service *serviceMetaJSON `json:"service,omitempty"`
}

type serviceMetaJSON struct {
	IP       string            `json:"ip"`
	PID      uint64            `json:"pid"`
	Hash     string            `json:"hash"`
	Alias    string            `json:"alias"`
	UserData map[string]string `json:"user_data,omitempty"`
}

func (s *Surface) handleSessions(w http.ResponseWriter, _ *http.Request) {
	all := s.store.AllSessions()
	out := make([]sessionResponse, 0, len(all))
	for _, sess := range all {
		sess.RLock()
		resp := sessionResponse{SID: sess.SID, Tag: sess.Tag, Status: sess.Status.String()}
		if sess.ServiceMeta != nil {
			resp.Service = &serviceMetaJSON{
				IP:       sess.ServiceMeta.IP,
				PID:      sess.ServiceMeta.PID,
				Hash:     sess.ServiceMeta.Hash,
				Alias:    sess.ServiceMeta.Alias,
				UserData: sess.ServiceMeta.UserData,
			}
		}
		sess.RUnlock()
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

// ---------------------------------------------------------------------------
// GET /pcommands
// ---------------------------------------------------------------------------

func (s *Surface) handlePCommands(w http.ResponseWriter, _ *http.Request) {
	groups := s.store.Groups.AllGroups(nil)
	out := make(map[string][]string, len(groups))
	for gid := range groups {
		out[gid] = s.store.Bkpts.ForGroup(gid)
	}
	writeJSON(w, http.StatusOK, out)
}

// ---------------------------------------------------------------------------
// GET /groups
// ---------------------------------------------------------------------------

type groupResponse struct {
	Alias string   `json:"alias"`
	SIDs  []uint64 `json:"sids"`
}

func (s *Surface) handleGroups(w http.ResponseWriter, _ *http.Request) {
	groups := s.store.Groups.AllGroups(nil)
	out := make(map[string]groupResponse, len(groups))
	for gid, meta := range groups {
		sids := make([]uint64, 0, len(meta.SIDs))
		for sid := range meta.SIDs {
			sids = append(sids, sid)
		}
		out[gid] = groupResponse{Alias: meta.Alias, SIDs: sids}
	}
	writeJSON(w, http.StatusOK, out)
}

// ---------------------------------------------------------------------------
// GET /src_to_grp_ids, /src_to_grps
// ---------------------------------------------------------------------------

func (s *Surface) handleSrcToGroupIDs(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	if src == "" {
		writeError(w, http.StatusBadRequest, errMissingSrc)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Sources.ResolveGroupIDs(src))
}

func (s *Surface) handleSrcToGroups(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	if src == "" {
		writeError(w, http.StatusBadRequest, errMissingSrc)
		return
	}
	gids := s.store.Sources.ResolveGroupIDs(src)
	groups := s.store.Groups.AllGroups(nil)
	out := make(map[string]string, len(gids))
	for _, gid := range gids {
		out[gid] = groups[gid].Alias
	}
	writeJSON(w, http.StatusOK, out)
}

// ---------------------------------------------------------------------------
// POST /send
// ---------------------------------------------------------------------------

type sendRequest struct {
	Line string `json:"line"`
}

type sendResponse struct {
	ExtToken *uint64 `json:"ext_token,omitempty"`
}

// handleSend parses line the way a session's own input would be parsed,
// routes its verb through the same Dispatch table, and invokes the
// resolved Handler against the shared HandlerContext. Handlers report
// their result through the stdout sink (spec.md §4.3) rather than this
// response — accepting the command is synchronous, observing its
// outcome is not, so this answers as soon as the handler returns rather
// than waiting on a FinishedCmd.
func (s *Surface) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	in := s.parser.Parse(req.Line)
	if in.Internal {
		writeError(w, http.StatusBadRequest, errInternalCommand)
		return
	}
	handler := s.dispatch.Route(in.CmdText)
	handler(s.hc, in)

	writeJSON(w, http.StatusAccepted, sendResponse{ExtToken: in.ExtToken})
}
