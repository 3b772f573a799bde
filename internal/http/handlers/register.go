package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/trialbooking/internal/domain/document"
	"github.com/geocoder89/trialbooking/internal/domain/trial"
	"github.com/geocoder89/trialbooking/internal/jobs"
	"github.com/geocoder89/trialbooking/internal/observability"
	"github.com/gin-gonic/gin"
)

// DocumentAppender is the one capability the gateway needs from the store.
type DocumentAppender interface {
	Append(ctx context.Context, doc document.Document) error
}

// FollowUpQueue receives the confirmation job of a stored registration.
type FollowUpQueue interface {
	Enqueue(ctx context.Context, j jobs.Job) error
}

var ErrNotAnObject = errors.New("request body must be a JSON object")

const storeTimeout = 5 * time.Second

type RegistrationHandler struct {
	store      DocumentAppender
	queue      FollowUpQueue
	log        *slog.Logger
	prom       *observability.Prom
	collection string
	strict     bool
	now        func() time.Time
}

type RegistrationHandlerConfig struct {
	Collection   string
	StrictSchema bool
}

func NewRegistrationHandler(store DocumentAppender, queue FollowUpQueue, log *slog.Logger, prom *observability.Prom, cfg RegistrationHandlerConfig) *RegistrationHandler {
	if cfg.Collection == "" {
		cfg.Collection = trial.Collection
	}

	return &RegistrationHandler{
		store:      store,
		queue:      queue,
		log:        log,
		prom:       prom,
		collection: cfg.Collection,
		strict:     cfg.StrictSchema,
		now:        time.Now,
	}
}

// Register handles POST /api/register: stamp createdAt, append one document,
// then report {success}. Every failure is turned into a response here.
func (h *RegistrationHandler) Register(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()

	fields, rejected, err := h.decode(ctx)
	if rejected != nil {
		h.prom.ObserveRegistration("rejected")
		RespondRejected(ctx, rejected)
		return
	}
	if err != nil {
		h.fail(ctx, "parse", err, err.Error())
		return
	}

	doc, err := document.New(h.collection, fields, h.now())
	if err != nil {
		h.fail(ctx, "stamp", err, err.Error())
		return
	}

	cctx, cancel := context.WithTimeout(reqCtx, storeTimeout)
	defer cancel()

	err = h.store.Append(cctx, doc)
	if err != nil {
		h.fail(ctx, "append", err, "could not store registration")
		return
	}

	h.prom.ObserveRegistration("stored")
	h.log.InfoContext(reqCtx, "registration stored", "document_id", doc.ID, "collection", doc.Collection)

	h.enqueueFollowUp(cctx, doc)

	RespondSuccess(ctx)
}

func (h *RegistrationHandler) fail(ctx *gin.Context, stage string, err error, message string) {
	h.prom.ObserveRegistration("failed")
	h.log.ErrorContext(ctx.Request.Context(), "registration failed", "stage", stage, "err", err)
	RespondFailure(ctx, message)
}

// decode returns the document fields. In strict mode the body must match the
// registration schema and only its fields are kept; otherwise any JSON object
// is stored as sent.
func (h *RegistrationHandler) decode(ctx *gin.Context) (map[string]any, []FieldError, error) {
	if h.strict {
		var reg trial.Registration

		rejected, err := BindStrict(ctx, &reg)
		if rejected != nil || err != nil {
			return nil, rejected, err
		}
		return reg.Fields(), nil, nil
	}

	raw, err := ctx.GetRawData()
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	if err := singleJSONValue(raw); err != nil {
		return nil, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, nil, fmt.Errorf("decode body: %w", err)
	}
	if fields == nil {
		return nil, nil, ErrNotAnObject
	}

	return fields, nil, nil
}

// enqueueFollowUp schedules the confirmation contact. It runs after the append
// succeeded and never changes the response.
func (h *RegistrationHandler) enqueueFollowUp(ctx context.Context, doc document.Document) {
	if h.queue == nil {
		return
	}

	jobType := string(jobs.TypeTrialConfirmation)
	payload := jobs.TrialConfirmationFromDocument(doc, h.now())

	if err := jobs.ValidatePayload(jobs.TypeTrialConfirmation, payload); err != nil {
		h.prom.ObserveEnqueue(jobType, "skipped")
		h.log.DebugContext(ctx, "confirmation job skipped", "document_id", doc.ID, "err", err)
		return
	}

	raw, err := jobs.EncodePayload(jobs.TypeTrialConfirmation, payload)
	if err == nil {
		var j jobs.Job
		j, err = jobs.NewJob(jobs.TypeTrialConfirmation, raw, time.Time{})
		if err == nil {
			err = h.queue.Enqueue(ctx, j)
		}
	}

	if err != nil {
		h.prom.ObserveEnqueue(jobType, "error")
		h.log.WarnContext(ctx, "confirmation job not enqueued", "document_id", doc.ID, "err", err)
		return
	}

	h.prom.ObserveEnqueue(jobType, "ok")
}
