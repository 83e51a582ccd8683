package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redgrouse/backend/internal/blocking"
	"github.com/redgrouse/backend/internal/db"
	"github.com/redgrouse/backend/internal/ratelimit"
	"github.com/redgrouse/backend/internal/read"
	"github.com/redgrouse/backend/internal/tiles"
	"github.com/redgrouse/backend/internal/uploadsvc"
)

// maxUploadBytes bounds the multipart body the HTTP layer will buffer before
// handing a reader to the parser, which enforces the real 50 MiB CSV-bytes
// ceiling itself; this is slack for multipart framing and a ZIP wrapper.
const maxUploadBytes = 64 << 20

// Handlers holds the shared collaborators every route handler needs.
type Handlers struct {
	db             *db.DB
	uploads        *uploadsvc.Service
	nameIndex      *read.NameIndexCache
	tileCache      *tiles.Cache
	pool           *blocking.Pool
	limiter        *ratelimit.Limiter // optional; nil disables the ingest limiter
	requestTimeout time.Duration
	dbTimeout      time.Duration
	zipTimeout     time.Duration
	logger         *slog.Logger
}

// New constructs a Handlers. limiter may be nil (the spec marks the ingest
// limiter optional).
func New(
	d *db.DB,
	uploads *uploadsvc.Service,
	nameIndex *read.NameIndexCache,
	tileCache *tiles.Cache,
	pool *blocking.Pool,
	limiter *ratelimit.Limiter,
	requestTimeout, dbTimeout, zipTimeout time.Duration,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		db:             d,
		uploads:        uploads,
		nameIndex:      nameIndex,
		tileCache:      tileCache,
		pool:           pool,
		limiter:        limiter,
		requestTimeout: requestTimeout,
		dbTimeout:      dbTimeout,
		zipTimeout:     zipTimeout,
		logger:         logger,
	}
}

// withDBTimeout bounds a single database call with the configured statement
// timeout, independent of the handler's overall request timeout.
func (h *Handlers) withDBTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return db.WithTimeout(ctx, h.dbTimeout)
}

// Health is the liveness probe.
//
//	@Summary	Health check
//	@Tags		System
//	@Produce	plain
//	@Success	200	{string}	string	"OK"
//	@Router		/health [get]
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
