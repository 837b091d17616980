package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/aggregate"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
	"github.com/joseph-ayodele/datalake-etl/internal/export"
	"github.com/joseph-ayodele/datalake-etl/internal/ingest"
	"github.com/joseph-ayodele/datalake-etl/internal/metrics"
	"github.com/joseph-ayodele/datalake-etl/internal/records"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HTTPConfig wires the HTTP surface. Services missing from Datasets answer 404.
type HTTPConfig struct {
	Datasets       map[constants.Dataset]*records.Service
	Uploader       *ingest.Uploader
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Ping           func(ctx context.Context) error
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// HTTPHandler serves the REST API over the record services.
type HTTPHandler struct {
	cfg    HTTPConfig
	logger *slog.Logger
}

func NewHTTPHandler(cfg HTTPConfig) *HTTPHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	return &HTTPHandler{cfg: cfg, logger: cfg.Logger.With("component", "http")}
}

// Routes returns the full router.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	if h.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Route("/api", func(r chi.Router) {
			r.Get("/returns", h.listDataset(constants.DatasetReturns))
			r.Get("/purchases", h.listDataset(constants.DatasetPurchases))
			r.Get("/summary", h.summary)
			r.Get("/summary.csv", h.summaryCSV)
			r.Get("/export/{dataset}", h.exportWorkbook)
			r.Post("/upload", h.upload)
			r.Post("/cache/invalidate", h.invalidate)
		})

		r.Get("/purchases/", h.listPurchases)
		r.Get("/purchases/range/", h.purchaseRange)
		r.Get("/purchases/{id}", h.getPurchase)
		r.Get("/statistics/", h.statistics)
	})
	return r
}

func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		reqID := middleware.GetReqID(r.Context())
		ctx := common.WithRequestID(r.Context(), reqID)
		ctx = common.WithLogger(ctx, h.logger.With("request_id", reqID))

		next.ServeHTTP(ww, r.WithContext(ctx))

		h.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", reqID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := errResponse(r, err)
	log := common.LoggerFromContext(r.Context(), h.logger)
	if resp.HTTPStatusCode >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "status", resp.HTTPStatusCode, "error", err)
	}
	_ = render.Render(w, r, resp)
}

func (h *HTTPHandler) service(name string) (*records.Service, error) {
	svc, ok := h.cfg.Datasets[constants.Dataset(name)]
	if !ok || svc == nil {
		return nil, fmt.Errorf("%w: dataset %q", common.ErrNotFound, name)
	}
	return svc, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", common.ErrInvalidInput, key)
	}
	return b, nil
}

type listResponse struct {
	Data    []entity.Record      `json:"data"`
	Message string               `json:"message"`
	RunID   string               `json:"run_id"`
	Files   []entity.FileReport  `json:"files"`
	Load    *records.SaveOutcome `json:"load,omitempty"`
}

func saveMessage(out records.SaveOutcome) string {
	if out.Queued {
		return fmt.Sprintf("Queued %d records for insertion (job %s)", out.Rows, out.JobID)
	}
	return fmt.Sprintf("Inserted %d records into the database", out.Rows)
}

// listDataset serves GET /api/{dataset}?save=&refresh=.
func (h *HTTPHandler) listDataset(d constants.Dataset) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := h.service(string(d))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		save, err := queryBool(r, "save")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		refresh, err := queryBool(r, "refresh")
		if err != nil {
			h.fail(w, r, err)
			return
		}

		res, err := svc.List(r.Context(), refresh)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp := listResponse{
			Data:    res.Records,
			Message: "Data retrieved but not saved to the database. Add ?save=true to save.",
			RunID:   res.RunID,
			Files:   res.Files,
		}
		if save {
			out, err := svc.Save(r.Context(), res)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			resp.Load = &out
			resp.Message = saveMessage(out)
		}
		render.JSON(w, r, resp)
	}
}

type summaryResponse struct {
	TotalPurchases int     `json:"total_purchases"`
	TotalAmount    float64 `json:"total_amount"`
	AverageAmount  float64 `json:"average_amount"`
	Message        string  `json:"message"`
}

func (h *HTTPHandler) summary(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service(string(constants.DatasetPurchases))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	save, err := queryBool(r, "save")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := svc.List(r.Context(), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.Total() == 0 {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"message": "No purchase data found"})
		return
	}

	stats := aggregate.Summarize(res.Records)
	resp := summaryResponse{
		TotalPurchases: stats.TotalCount,
		TotalAmount:    stats.TotalMeasure,
		AverageAmount:  stats.AverageMeasure,
		Message:        "Summary retrieved but not saved to the database. Add ?save=true to save.",
	}
	if save {
		out, err := svc.Save(r.Context(), res)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Message = saveMessage(out)
	}
	render.JSON(w, r, resp)
}

func (h *HTTPHandler) summaryCSV(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("dataset")
	if name == "" {
		name = string(constants.DatasetPurchases)
	}
	svc, err := h.service(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sorted, err := svc.Sorted(r.Context(), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.SummaryFileName(svc.Dataset())))
	if err := export.NewService(h.logger).WriteSummaryCSV(w, svc.Dataset(), sorted); err != nil {
		h.logger.Error("summary csv write failed", "error", err)
	}
}

func (h *HTTPHandler) exportWorkbook(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service(chi.URLParam(r, "dataset"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := svc.Workbook(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(svc.Dataset())+".xlsx"))
	_, _ = w.Write(b)
}

type uploadResponse struct {
	Message  string             `json:"message"`
	FileName string             `json:"file_name"`
	FilePath string             `json:"file_path"`
	Category constants.Category `json:"category"`
	Size     int64              `json:"size"`
}

func (h *HTTPHandler) upload(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Uploader == nil {
		h.fail(w, r, fmt.Errorf("%w: uploads disabled", common.ErrUnavailable))
		return
	}
	if r.ContentLength > h.cfg.MaxUploadBytes {
		h.tooLarge(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(w, r)
			return
		}
		h.fail(w, r, fmt.Errorf("%w: no file part in the request", common.ErrInvalidInput))
		return
	}
	defer func() { _ = file.Close() }()

	if header.Filename == "" {
		h.fail(w, r, fmt.Errorf("%w: no selected file", common.ErrInvalidInput))
		return
	}

	ref, err := h.cfg.Uploader.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.cfg.Metrics.Upload(string(ref.Category))
	render.JSON(w, r, uploadResponse{
		Message:  "File successfully uploaded to " + ref.Location,
		FileName: ref.Name,
		FilePath: ref.Location,
		Category: ref.Category,
		Size:     ref.Size,
	})
}

func (h *HTTPHandler) tooLarge(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusRequestEntityTooLarge)
	render.JSON(w, r, &ErrResponse{
		Error:     fmt.Sprintf("upload exceeds %d bytes", h.cfg.MaxUploadBytes),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func (h *HTTPHandler) invalidate(w http.ResponseWriter, _ *http.Request) {
	for _, svc := range h.cfg.Datasets {
		svc.Invalidate()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) listPurchases(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service(string(constants.DatasetPurchases))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	refresh, err := queryBool(r, "refresh")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := svc.List(r.Context(), refresh)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, res.Records)
}

func (h *HTTPHandler) getPurchase(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service(string(constants.DatasetPurchases))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, rec)
}

func (h *HTTPHandler) purchaseRange(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service(string(constants.DatasetPurchases))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	lo, err := records.ParseBound("min_amount", q.Get("min_amount"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	hi, err := records.ParseBound("max_amount", q.Get("max_amount"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recs, err := svc.Range(r.Context(), lo, hi)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, recs)
}

// statistics serves GET /statistics/?dataset=, purchases by default.
func (h *HTTPHandler) statistics(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("dataset")
	if name == "" {
		name = string(constants.DatasetPurchases)
	}
	svc, err := h.service(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	refresh, err := queryBool(r, "refresh")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := svc.Statistics(r.Context(), refresh)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

func (h *HTTPHandler) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.cfg.Ping != nil {
		if err := h.cfg.Ping(r.Context()); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			status = map[string]string{"status": "unavailable", "database": err.Error()}
		} else {
			status["database"] = "ok"
		}
	}
	render.JSON(w, r, status)
}
