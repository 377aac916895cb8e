package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/opd-ai/vpe/engine"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Controller is the part of a Video the HTTP API drives.
type Controller interface {
	Feature() string
	IsEnabled() bool
	Enable() error
	Disable() error
	Stats() (engine.Stats, error)
}

// StatsResponse is the JSON body of GET /stats and of websocket "stats" events.
type StatsResponse struct {
	Feature string       `json:"feature"`
	State   string       `json:"state"`
	Enabled bool         `json:"enabled"`
	Engine  EngineCounts `json:"engine"`
	Display DisplayStats `json:"display"`
	Source  SourceStats  `json:"source"`
}

// EngineCounts mirrors engine.Stats with JSON names.
type EngineCounts struct {
	ConsumerQueued int    `json:"consumer_queued"`
	ProducerQueued int    `json:"producer_queued"`
	RenderPending  int    `json:"render_pending"`
	FlushPending   int    `json:"flush_pending"`
	AttachCached   int    `json:"attach_cached"`
	Attached       int    `json:"attached"`
	Acquired       uint64 `json:"acquired"`
	Requested      uint64 `json:"requested"`
	Processed      uint64 `json:"processed"`
	Bypassed       uint64 `json:"bypassed"`
	Failed         uint64 `json:"failed"`
	EOS            uint64 `json:"eos"`
}

// SourceStats reports the test-pattern source.
type SourceStats struct {
	Queued  int64 `json:"queued"`
	Dropped int64 `json:"dropped"`
}

// RouterConfig carries the dependencies of the HTTP API.
type RouterConfig struct {
	// Video is the engine being demonstrated (required)
	Video Controller
	// Hub streams live events; /ws is not mounted when nil
	Hub *StatsHub
	// Display and Source add presentation counters to stats when set
	Display *Display
	Source  *PatternSource
	// AllowedOrigins feeds the CORS middleware
	AllowedOrigins []string
}

// NewRouter builds the demo HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		resp, err := collectStats(cfg)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Post("/enable", toggleHandler(cfg, true))
	r.Post("/disable", toggleHandler(cfg, false))

	if cfg.Hub != nil {
		r.Handle("/ws", cfg.Hub)
	}

	return r
}

func toggleHandler(cfg RouterConfig, enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var err error
		if enable {
			err = cfg.Video.Enable()
		} else {
			err = cfg.Video.Disable()
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "toggleHandler",
				"enable":     enable,
				"request_id": middleware.GetReqID(req.Context()),
				"error":      err.Error(),
			}).Warn("Failed to toggle processing")
			writeError(w, http.StatusConflict, err)
			return
		}

		if cfg.Hub != nil {
			cfg.Hub.Broadcast("processing", map[string]bool{"enabled": enable})
		}
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": cfg.Video.IsEnabled()})
	}
}

// collectStats assembles the stats snapshot served over HTTP and websocket.
func collectStats(cfg RouterConfig) (StatsResponse, error) {
	st, err := cfg.Video.Stats()
	if err != nil {
		return StatsResponse{}, err
	}

	resp := StatsResponse{
		Feature: cfg.Video.Feature(),
		State:   st.State.String(),
		Enabled: st.Enabled,
		Engine: EngineCounts{
			ConsumerQueued: st.ConsumerQueued,
			ProducerQueued: st.ProducerQueued,
			RenderPending:  st.RenderPending,
			FlushPending:   st.FlushPending,
			AttachCached:   st.AttachCached,
			Attached:       st.Attached,
			Acquired:       st.Acquired,
			Requested:      st.Requested,
			Processed:      st.Processed,
			Bypassed:       st.Bypassed,
			Failed:         st.Failed,
			EOS:            st.EOS,
		},
	}
	if cfg.Display != nil {
		resp.Display = cfg.Display.Stats()
	}
	if cfg.Source != nil {
		resp.Source = SourceStats{Queued: cfg.Source.Queued(), Dropped: cfg.Source.Dropped()}
	}
	return resp, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "writeJSON",
			"error":    err.Error(),
		}).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
