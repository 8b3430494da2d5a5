package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/orbview/orbview/internal/catalog"
	"github.com/orbview/orbview/internal/events"
	"github.com/orbview/orbview/internal/geo"
	"github.com/orbview/orbview/internal/httputil"
	"github.com/orbview/orbview/internal/propagation"
	"github.com/orbview/orbview/internal/track"
)

// minQueryStep bounds client-supplied sampling steps so a single request
// cannot demand an unbounded number of propagations.
const minQueryStep = time.Second

// --- satellites ---

func (s *Server) handleListSatellites(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.catalog.Snapshot())
}

func (s *Server) handleUpsertSatellite(w http.ResponseWriter, r *http.Request) {
	var sat catalog.Satellite
	if err := json.NewDecoder(r.Body).Decode(&sat); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.catalog.Upsert(sat); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("satellite upserted", "satellite_id", sat.ID, "name", sat.Name)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":      sat.ID,
		"version": s.catalog.Version(),
	})
}

func (s *Server) handleGetSatellite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sat, ok := s.catalog.Get(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("satellite %s not found", id))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sat)
}

func (s *Server) handleDeleteSatellite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.catalog.Remove(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Info("satellite removed", "satellite_id", id)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"version": s.catalog.Version(),
	})
}

// --- track and events ---

// adapterFor looks up a catalog satellite and initializes its propagation
// adapter, writing the error response on failure.
func (s *Server) adapterFor(w http.ResponseWriter, id string) *propagation.Adapter {
	sat, ok := s.catalog.Get(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("satellite %s not found", id))
		return nil
	}
	ad, err := propagation.NewAdapter(sat.ID, sat.Line1, sat.Line2)
	if err != nil {
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return nil
	}
	return ad
}

// refTime resolves the ?at= query parameter, defaulting to the time model's
// current clock.
func (s *Server) refTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return s.model.CurrentTime(), true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid at parameter, want RFC3339")
		return time.Time{}, false
	}
	return t, true
}

func parseMinutes(r *http.Request, key string, fallback float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", key)
	}
	return v, nil
}

func parseStep(r *http.Request, fallback time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get("step")
	if raw == "" {
		return fallback, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("invalid step parameter, want seconds > 0")
	}
	step := time.Duration(secs * float64(time.Second))
	if step < minQueryStep {
		return 0, fmt.Errorf("step parameter below minimum %s", minQueryStep)
	}
	return step, nil
}

// handleTrack serves a single satellite's ground track.
// GET /api/v1/track/{id}?at=&tail=&head=&step=
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	ad := s.adapterFor(w, r.PathValue("id"))
	if ad == nil {
		return
	}
	ref, ok := s.refTime(w, r)
	if !ok {
		return
	}

	cfg := track.Config{
		TailMinutes: s.model.TailMinutes(),
		HeadMinutes: s.model.HeadMinutes(),
		Step:        track.DefaultStep,
	}
	var err error
	if cfg.TailMinutes, err = parseMinutes(r, "tail", cfg.TailMinutes); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cfg.HeadMinutes, err = parseMinutes(r, "head", cfg.HeadMinutes); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cfg.Step, err = parseStep(r, cfg.Step); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.sampler.Sample(ad, ref, cfg)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":    ad.ID(),
		"time":  ref.UTC(),
		"track": res,
	})
}

// handleEvents serves a single satellite's proximity events.
// GET /api/v1/events/{id}?at=&kind=&target_lat=&fade_in=&fade_out=&step=
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ad := s.adapterFor(w, r.PathValue("id"))
	if ad == nil {
		return
	}
	ref, ok := s.refTime(w, r)
	if !ok {
		return
	}

	cfg, err := parseEventConfig(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var evs []events.Event
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "all":
		evs, err = s.detector.Detect(ad, ref, cfg)
	case "crossings":
		evs, err = s.detector.LatitudeCrossings(ad, ref, cfg)
	case "apexes":
		evs, err = s.detector.LatitudeApexes(ad, ref, cfg)
	default:
		httputil.WriteError(w, http.StatusBadRequest, "invalid kind parameter, want all, crossings, or apexes")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":     ad.ID(),
		"time":   ref.UTC(),
		"events": evs,
	})
}

// parseEventConfig reads the detector knobs shared by the event endpoints.
func parseEventConfig(r *http.Request) (events.Config, error) {
	cfg := events.DefaultConfig()
	var err error
	if cfg.TargetLatDeg, err = parseMinutes(r, "target_lat", cfg.TargetLatDeg); err != nil {
		return cfg, err
	}
	if cfg.FadeInMinutes, err = parseMinutes(r, "fade_in", cfg.FadeInMinutes); err != nil {
		return cfg, err
	}
	if cfg.FadeOutMinutes, err = parseMinutes(r, "fade_out", cfg.FadeOutMinutes); err != nil {
		return cfg, err
	}
	if cfg.Step, err = parseStep(r, cfg.Step); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// catalogEntries flattens the current snapshot for the batch operations.
func (s *Server) catalogEntries() []propagation.Entry {
	snap := s.catalog.Snapshot()
	entries := make([]propagation.Entry, len(snap.Satellites))
	for i, sat := range snap.Satellites {
		entries[i] = propagation.Entry{ID: sat.ID, Line1: sat.Line1, Line2: sat.Line2}
	}
	return entries
}

// handleAllEvents serves proximity events for the whole catalog in one call.
// GET /api/v1/events?at=&target_lat=&fade_in=&fade_out=&step=
func (s *Server) handleAllEvents(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.refTime(w, r)
	if !ok {
		return
	}
	cfg, err := parseEventConfig(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := s.detector.BatchDetect(r.Context(), s.catalogEntries(), ref, cfg)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"time":       ref.UTC(),
		"satellites": results,
	})
}

// --- positions ---

type satellitePosition struct {
	ID       string        `json:"id"`
	Position *geo.Position `json:"position,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// handlePositions serves instantaneous positions for the whole catalog,
// the lightweight alternative to a full frame when only the satellite dots
// need refreshing.
// GET /api/v1/positions?at=
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.refTime(w, r)
	if !ok {
		return
	}

	results := s.pool.PositionBatch(r.Context(), s.catalogEntries(), ref)
	out := make([]satellitePosition, len(results))
	for i, res := range results {
		out[i] = satellitePosition{ID: res.ID}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			continue
		}
		pos := res.Position
		out[i].Position = &pos
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"time":       ref.UTC(),
		"satellites": out,
	})
}

// --- frames ---

// handleFrame serves a complete render snapshot. Live requests without an
// explicit timestamp are answered from the cache when possible; everything
// else builds on demand.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	explicit := r.URL.Query().Get("at") != ""
	ref, ok := s.refTime(w, r)
	if !ok {
		return
	}

	if !explicit && s.model.IsRealTime() && s.cache != nil {
		if f := s.cache.Get(ref); f != nil {
			httputil.WriteJSON(w, http.StatusOK, f)
			return
		}
	}

	trackCfg := track.Config{
		TailMinutes: s.model.TailMinutes(),
		HeadMinutes: s.model.HeadMinutes(),
		Step:        track.DefaultStep,
	}

	// Glow visibility is independent of track length, so the fades default
	// on their own rather than following the display windows.
	eventCfg := events.DefaultConfig()
	var err error
	if eventCfg.FadeInMinutes, err = parseMinutes(r, "fade_in", eventCfg.FadeInMinutes); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if eventCfg.FadeOutMinutes, err = parseMinutes(r, "fade_out", eventCfg.FadeOutMinutes); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := s.builder.Build(r.Context(), ref, trackCfg, eventCfg)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, f)
}

func (s *Server) handleFrameStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		httputil.WriteError(w, http.StatusNotFound, "frame cache disabled")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.cache.Stats())
}

// --- time control ---

func (s *Server) handleGetTime(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.model.Snapshot())
}

type pendingRequest struct {
	Start       *time.Time `json:"start,omitempty"`
	Stop        *time.Time `json:"stop,omitempty"`
	TailMinutes *float64   `json:"tail_minutes,omitempty"`
	HeadMinutes *float64   `json:"head_minutes,omitempty"`
	StepMinutes *int       `json:"step_minutes,omitempty"`
}

// handleTimePending stages edits to the time range and display windows.
// Range edits stay pending until /api/v1/time/apply.
func (s *Server) handleTimePending(w http.ResponseWriter, r *http.Request) {
	var req pendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	apply := func(err error) bool {
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return false
		}
		return true
	}

	if req.Start != nil && !apply(s.model.SetPendingStart(*req.Start)) {
		return
	}
	if req.Stop != nil && !apply(s.model.SetPendingStop(*req.Stop)) {
		return
	}
	if req.TailMinutes != nil && !apply(s.model.SetTailMinutes(*req.TailMinutes)) {
		return
	}
	if req.HeadMinutes != nil && !apply(s.model.SetHeadMinutes(*req.HeadMinutes)) {
		return
	}
	if req.StepMinutes != nil && !apply(s.model.SetStepMinutes(*req.StepMinutes)) {
		return
	}

	httputil.WriteJSON(w, http.StatusOK, s.model.Snapshot())
}

func (s *Server) handleTimeApply(w http.ResponseWriter, r *http.Request) {
	if err := s.model.Apply(); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("time range applied",
		"start", s.model.Snapshot().CommittedStart,
		"stop", s.model.Snapshot().CommittedStop,
	)
	httputil.WriteJSON(w, http.StatusOK, s.model.Snapshot())
}

func (s *Server) handleTimeCancel(w http.ResponseWriter, r *http.Request) {
	s.model.Cancel()
	httputil.WriteJSON(w, http.StatusOK, s.model.Snapshot())
}

func (s *Server) handleTimeStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction int `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Direction == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "direction must be 1 or -1")
		return
	}
	s.model.StepTime(req.Direction)
	httputil.WriteJSON(w, http.StatusOK, s.model.Snapshot())
}

func (s *Server) handleTimeSlider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position *float64 `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position == nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body, want {\"position\": 0..1}")
		return
	}
	s.model.SetTimeFromSlider(*req.Position)
	httputil.WriteJSON(w, http.StatusOK, s.model.Snapshot())
}

func (s *Server) handleTimeResume(w http.ResponseWriter, r *http.Request) {
	s.model.ResumeRealTime(time.Now().UTC())
	httputil.WriteJSON(w, http.StatusOK, s.model.Snapshot())
}
