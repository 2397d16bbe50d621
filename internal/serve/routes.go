package serve

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/frances-ha/egm722/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Summary is the /summary.json document.
type Summary struct {
	GeneratedAt time.Time       `json:"generated_at"`
	CRS         string          `json:"crs"`
	JoinRows    int             `json:"join_rows"`
	Counties    []CountySummary `json:"counties"`
	Straddlers  []Straddler     `json:"straddlers"`
	ClipTotal   float64         `json:"clip_total"`
	DurationMS  int64           `json:"duration_ms"`
}

// CountySummary is one county row of the summary.
type CountySummary struct {
	County         string  `json:"county"`
	Population     float64 `json:"population"`
	Wards          int     `json:"wards"`
	Fragments      int     `json:"fragments"`
	BoundaryLength float64 `json:"boundary_length"`
}

// Straddler is a ward intersecting several counties.
type Straddler struct {
	Ward     int      `json:"ward"`
	Counties []string `json:"counties"`
}

func newSummary(res *pipeline.Result, at time.Time) Summary {
	out := Summary{
		GeneratedAt: at,
		CRS:         res.Wards.CRS,
		JoinRows:    len(res.Rows),
		Counties:    make([]CountySummary, 0, len(res.Summary)),
		Straddlers:  make([]Straddler, 0, len(res.Straddlers)),
		ClipTotal:   res.Clip.Total,
		DurationMS:  res.Duration.Milliseconds(),
	}
	for _, row := range res.Summary {
		cs := CountySummary{County: row.County, Population: row.Total, Wards: row.Wards}
		for _, cl := range res.Clip.PerCounty {
			if cl.County == row.County {
				cs.Fragments = cl.Fragments
				cs.BoundaryLength = cl.Length
			}
		}
		out.Counties = append(out.Counties, cs)
	}
	for _, st := range res.Straddlers {
		out.Straddlers = append(out.Straddlers, Straddler{Ward: st.WardIndex, Counties: st.Counties})
	}
	return out
}

// Handler returns the router serving the current snapshot.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		requestLogger(s.logger),
		middleware.Recoverer,
		middleware.Compress(5, "application/json", "application/geo+json", "text/html"),
	)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Get("/events", s.handleEvents)
	r.Group(func(r chi.Router) {
		r.Use(s.requireSnapshot)
		r.Get("/map.png", s.serveBytes("image/png", func(sn *snapshot) []byte { return sn.png }))
		r.Get("/summary.json", s.serveBytes("application/json", func(sn *snapshot) []byte { return sn.summary }))
		r.Get("/fragments.geojson", s.serveBytes("application/geo+json", func(sn *snapshot) []byte { return sn.fragments }))
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func (s *Server) requireSnapshot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if snap, _ := s.current(); snap == nil {
			http.Error(w, "no result yet", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveBytes(contentType string, pick func(*snapshot) []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, _ := s.current()
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Last-Modified", snap.updated.Format(http.TimeFormat))
		_, _ = w.Write(pick(snap))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.current()
	switch {
	case err != nil:
		http.Error(w, "last refresh failed: "+err.Error(), http.StatusServiceUnavailable)
	case snap == nil:
		http.Error(w, "no result yet", http.StatusServiceUnavailable)
	default:
		_, _ = fmt.Fprintf(w, "ok %s\n", snap.updated.Format(time.RFC3339))
	}
}

// handleEvents streams a "refresh" server-sent event after every publish.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			if _, err := fmt.Fprintf(w, "event: refresh\ndata: %d\n\n", time.Now().UnixMilli()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

const indexHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>countymap</title></head>
<body>
<p><a href="/summary.json">summary.json</a> | <a href="/fragments.geojson">fragments.geojson</a></p>
<img id="map" src="/map.png" alt="choropleth" style="max-width:100%">
<script>
new EventSource("/events").addEventListener("refresh", () => {
  document.getElementById("map").src = "/map.png?" + Date.now();
});
</script>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}
