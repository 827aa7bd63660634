// Package httpapi serves dataset exports over HTTP.
//
//	POST /v1/export/{format}   body: dataset document (YAML or JSON)
//	GET  /health
//
// Query parameters header, shared_strings, top, delimiter and table override
// the server's export options for one request.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/javajack/tabexport"
	"github.com/javajack/tabexport/internal/datafile"
)

const maxBodyBytes = 32 << 20

// Server routes export requests to a tabexport.Exporter.
type Server struct {
	router *mux.Router
	opts   []tabexport.Option
	log    zerolog.Logger
}

// New creates a server. opts are applied to every export before the
// request's own overrides.
func New(log zerolog.Logger, opts ...tabexport.Option) *Server {
	s := &Server{
		router: mux.NewRouter(),
		opts:   opts,
		log:    log,
	}
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/export/{format}", s.handleExport).Methods(http.MethodPost)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := tabexport.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts, err := requestOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ds, err := datafile.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	allOpts := append(append([]tabexport.Option{tabexport.WithLogger(s.log)}, s.opts...), opts...)
	out, err := tabexport.NewExporter(allOpts...).ExportBytes(ds, format)
	if err != nil {
		switch {
		case errors.Is(err, tabexport.ErrEmptyDataSource):
			writeError(w, http.StatusUnprocessableEntity, err)
		default:
			s.log.Error().Err(err).Str("format", string(format)).Msg("export failed")
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	name := ds.Name()
	if name == "" {
		name = "export"
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+string(format)))
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// requestOptions rejects query strings that do not parse as a whole; a raw
// ";" would otherwise drop the delimiter parameter without notice.
func requestOptions(r *http.Request) ([]tabexport.Option, error) {
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	var opts []tabexport.Option
	if v := q.Get("header"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
		opts = append(opts, tabexport.WithHeader(b))
	}
	if v := q.Get("shared_strings"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("shared_strings: %w", err)
		}
		opts = append(opts, tabexport.WithSharedStrings(b))
	}
	if v := q.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("top: %w", err)
		}
		opts = append(opts, tabexport.WithTopN(n))
	}
	if v := q.Get("delimiter"); v != "" {
		opts = append(opts, tabexport.WithDelimiter(v))
	}
	if v := q.Get("table"); v != "" {
		opts = append(opts, tabexport.WithCSVTable(v))
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		ev := s.log.Info()
		switch {
		case rec.status >= 500:
			ev = s.log.Error()
		case rec.status >= 400:
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).Str("path", r.URL.Path).Int("status", rec.status).
			Dur("duration", time.Since(start)).Msg("request")
	})
}
