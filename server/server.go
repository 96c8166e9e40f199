package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/inkpost/inkpost"
	"github.com/inkpost/inkpost/internal/config"
	"github.com/klauspost/compress/gzhttp"
)

var ErrInputTooLarge = errors.New("input too large")

// room for the multipart envelope around the markdown file
const multipartSlack = 16 << 10

// Renderer is what the service needs from the markdown pipeline.
type Renderer interface {
	inkpost.ContentRenderer
	HasMath(src string) bool
}

// Server is the HTTP render service.
type Server struct {
	rd  Renderer
	cfg config.Server
}

func New(rd Renderer, cfg config.Server) *Server {
	return &Server{rd: rd, cfg: cfg}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(20 * time.Second))
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
		NoColor: true,
	}))

	corsConfig := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	r.Use(corsConfig.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok")
	})
	r.Post("/render", s.render)
	r.Post("/hasmath", s.hasMath)
	return gzhttp.GzipHandler(r)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	src, ok := s.readMarkdown(w, r)
	if !ok {
		return
	}
	content, err := s.rd.RenderContent(r.Context(), src)
	if err != nil {
		slog.ErrorContext(r.Context(), "Couldn't render markdown", slog.Any("err", err))
		errorData(w, "Couldn't render markdown", http.StatusInternalServerError)
		return
	}
	returnData(w, content)
}

func (s *Server) hasMath(w http.ResponseWriter, r *http.Request) {
	src, ok := s.readMarkdown(w, r)
	if !ok {
		return
	}
	has := false
	if src != nil {
		has = s.rd.HasMath(*src)
	}
	returnData(w, struct {
		HasMath bool `json:"has_math"`
	}{has})
}

// readMarkdown accepts the "md" file of a multipart form, a JSON object with a
// "markdown" key, or the raw body. A nil result means absent content.
func (s *Server) readMarkdown(w http.ResponseWriter, r *http.Request) (*string, bool) {
	limit := s.cfg.MaxInputBytes
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var src *string
	var err error
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)
		src, err = readMultipart(r, limit)
	case "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)
		var req struct {
			Markdown *string `json:"markdown"`
		}
		if err = json.NewDecoder(r.Body).Decode(&req); err == nil {
			src = req.Markdown
			if src != nil && int64(len(*src)) > limit {
				err = ErrInputTooLarge
			}
		}
	default:
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		var body []byte
		if body, err = io.ReadAll(r.Body); err == nil {
			str := string(body)
			src = &str
		}
	}

	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, ErrInputTooLarge) {
			errorData(w, fmt.Sprintf("Markdown is larger than %s", humanize.IBytes(uint64(limit))), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		errorData(w, "Couldn't read markdown: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return src, true
}

func readMultipart(r *http.Request, limit int64) (*string, error) {
	if err := r.ParseMultipartForm(limit + multipartSlack); err != nil {
		return nil, err
	}
	f, hdr, err := r.FormFile("md")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	if hdr.Size > limit {
		return nil, ErrInputTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrInputTooLarge
	}
	str := string(data)
	return &str, nil
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Render service listening", slog.String("addr", s.cfg.Address), slog.String("max_input", humanize.IBytes(uint64(s.cfg.MaxInputBytes))))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.InfoContext(ctx, "Shutting down render service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func returnData(w http.ResponseWriter, retData any) {
	writeJSON(w, retData, http.StatusOK)
}

func errorData(w http.ResponseWriter, msg string, statusCode int) {
	writeJSON(w, struct {
		Status string `json:"status"`
		Data   string `json:"data"`
	}{"error", msg}, statusCode)
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Couldn't send return data", slog.Any("err", err))
	}
}
