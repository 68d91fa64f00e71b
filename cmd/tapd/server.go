package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tapfederation/tap/cutmgr"
	"github.com/tapfederation/tap/engine"
	"github.com/tapfederation/tap/snapshot"
	"github.com/tapfederation/tap/stream"
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"
)

// gateway is the thin external collaborator spec.md §1 describes: it
// translates HTTP/SSE into Allocation Engine commands and back. It is
// deliberately outside the core packages (engine, ledger, holds, ...),
// which never import net/http.
type gateway struct {
	engine  *engine.Engine
	cuts    *cutmgr.Manager
	proj    *snapshot.Projector
	mux     *stream.Multiplexer
	logger  interface {
		Error(msg string, args ...any)
	}
}

func newRouter(g *gateway) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/v1/commands/supply.delta", g.handleSupplyDelta)
	r.Post("/v1/commands/hold.place", g.handleHoldPlace)
	r.Post("/v1/commands/hold.confirm", g.handleHoldConfirm)
	r.Post("/v1/commands/hold.release", g.handleHoldRelease)
	r.Post("/v1/commands/alloc.cancel", g.handleAllocCancel)

	r.Post("/v1/feasible.check", g.handleFeasibleCheck)
	r.Get("/v1/resources/{resource}/freebusy", g.handleFreeBusy)

	r.Post("/v1/cuts", g.handleCreateCut)
	r.Get("/v1/snapshot", g.handleSnapshot)

	r.Get("/v1/stream/{resource}", g.handleStream)

	return r
}

func decode(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func (g *gateway) handleSupplyDelta(w http.ResponseWriter, r *http.Request) {
	var cmd engine.SupplyDeltaCmd
	if !decode(r, &cmd) {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "malformed body"})
		return
	}
	evt, err := g.engine.SupplyDelta(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

func (g *gateway) handleHoldPlace(w http.ResponseWriter, r *http.Request) {
	var cmd engine.HoldPlaceCmd
	if !decode(r, &cmd) {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "malformed body"})
		return
	}
	res, err := g.engine.HoldPlace(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (g *gateway) handleHoldConfirm(w http.ResponseWriter, r *http.Request) {
	var cmd engine.HoldConfirmCmd
	if !decode(r, &cmd) {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "malformed body"})
		return
	}
	res, err := g.engine.HoldConfirm(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (g *gateway) handleHoldRelease(w http.ResponseWriter, r *http.Request) {
	var cmd engine.HoldReleaseCmd
	if !decode(r, &cmd) {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "malformed body"})
		return
	}
	events, err := g.engine.HoldRelease(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (g *gateway) handleAllocCancel(w http.ResponseWriter, r *http.Request) {
	var cmd engine.AllocCancelCmd
	if !decode(r, &cmd) {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "malformed body"})
		return
	}
	events, err := g.engine.AllocCancel(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (g *gateway) handleFeasibleCheck(w http.ResponseWriter, r *http.Request) {
	var cmd engine.FeasibleCheckCmd
	if !decode(r, &cmd) {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "malformed body"})
		return
	}
	res, err := g.engine.FeasibleCheck(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (g *gateway) handleFreeBusy(w http.ResponseWriter, r *http.Request) {
	resource := tapid.ResourceId(chi.URLParam(r, "resource"))
	start, err1 := timeline.ParseInstant(r.URL.Query().Get("start"))
	end, err2 := timeline.ParseInstant(r.URL.Query().Get("end"))
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "start/end must be RFC3339"})
		return
	}
	res, err := g.engine.FreeBusy(r.Context(), engine.FreeBusyCmd{
		Resource: resource,
		Interval: timeline.Interval{Start: start, End: end},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (g *gateway) handleCreateCut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resources []tapid.ResourceId `json:"resources"`
	}
	if !decode(r, &req) {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "malformed body"})
		return
	}
	cut, err := g.cuts.Create(r.Context(), req.Resources)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cut)
}

func (g *gateway) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cutId := tapid.CutId(q.Get("cut"))
	resource := tapid.ResourceId(q.Get("resource"))
	cut, ok := g.cuts.Get(cutId)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: "cut not found"})
		return
	}
	start, err1 := timeline.ParseInstant(q.Get("start"))
	end, err2 := timeline.ParseInstant(q.Get("end"))
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "start/end must be RFC3339"})
		return
	}

	snap, err := g.proj.Snapshot(r.Context(), resource, cut)
	if err != nil {
		writeError(w, err)
		return
	}

	var after timeline.Instant
	if a := q.Get("pageAfter"); a != "" {
		parsed, err := timeline.ParseInstant(a)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "pageAfter must be RFC3339"})
			return
		}
		after = parsed
	}
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	reply := snapshot.Project(snap, cut, snapshot.PageQuery{
		Window:    timeline.Interval{Start: start, End: end},
		PageAfter: after,
		PageSize:  pageSize,
	})
	writeJSON(w, http.StatusOK, reply)
}

// handleStream serves a resumable, optionally-bootstrapped SSE tail over a
// single resource's events, per spec.md §4.7.
func (g *gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	resource := tapid.ResourceId(chi.URLParam(r, "resource"))
	q := r.URL.Query()

	var afterSeq uint64
	if v := q.Get("afterSeq"); v != "" {
		afterSeq, _ = strconv.ParseUint(v, 10, 64)
	}
	bootstrap := q.Get("bootstrap") == "true"
	var heartbeat time.Duration
	if v := q.Get("heartbeatSec"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			heartbeat = time.Duration(n) * time.Second
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "streaming unsupported"})
		return
	}

	sub := g.mux.Subscribe(r.Context(), resource, stream.Options{
		AfterSeq:  afterSeq,
		Bootstrap: bootstrap,
		Heartbeat: heartbeat,
	})
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-sub.Items():
			if !ok {
				return
			}
			if item.Heartbeat {
				fmt.Fprintf(w, "event: heartbeat\ndata: {}\n\n")
			} else {
				data, _ := json.Marshal(item.Event)
				fmt.Fprintf(w, "event: event\ndata: %s\n\n", data)
			}
			flusher.Flush()
		}
	}
}
