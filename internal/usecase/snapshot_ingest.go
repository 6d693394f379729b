package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"SPXEngine/internal/domain/models"
	domsvc "SPXEngine/internal/domain/service"
	pkgkafka "SPXEngine/pkg/kafka"
	"SPXEngine/pkg/logger"
	"SPXEngine/pkg/util"
)

var ErrBadCapturedAt = errors.New("capturedAt is not a recognised timestamp")

// CaptureInputFromRequest turns the wire form into writer input. A blank
// capturedAt defers to the snapshot's generatedAt.
func CaptureInputFromRequest(req models.CaptureRequest) (models.CaptureInput, error) {
	in := models.CaptureInput{
		CaptureMode: req.CaptureMode,
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
	}
	if req.Snapshot != nil {
		in.Snapshot = *req.Snapshot
	}
	if s := strings.TrimSpace(req.CapturedAt); s != "" {
		t, ok := util.ParseTime(s)
		if !ok {
			return models.CaptureInput{}, fmt.Errorf("%w: %q", ErrBadCapturedAt, s)
		}
		in.CapturedAt = t
	}
	return in, nil
}

// SnapshotIngestHandler feeds snapshot messages from Kafka into the
// replay recorder.
type SnapshotIngestHandler struct {
	topic    string
	recorder domsvc.ReplayRecorder
	log      *logger.Logger
	validate *validator.Validate
}

func NewSnapshotIngestHandler(topic string, recorder domsvc.ReplayRecorder, log *logger.Logger) *SnapshotIngestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SnapshotIngestHandler{
		topic:    topic,
		recorder: recorder,
		log:      log.With(logger.String("topic", topic)),
		validate: validator.New(),
	}
}

var _ pkgkafka.MessageHandler = (*SnapshotIngestHandler)(nil)

func (h *SnapshotIngestHandler) Topic() string { return h.topic }

// Handle decodes one capture message. Malformed messages are permanent
// failures; a skipped capture (closed market, writer disabled) is not an
// error.
func (h *SnapshotIngestHandler) Handle(ctx context.Context, data []byte) error {
	var req models.CaptureRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("decode capture message: %w", err))
	}
	if err := h.validate.StructCtx(ctx, &req); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("invalid capture message: %w", err))
	}
	in, err := CaptureInputFromRequest(req)
	if err != nil {
		return pkgkafka.Permanent(err)
	}

	queued := h.recorder.Capture(ctx, in)
	h.log.Debug("snapshot message handled",
		logger.Bool("queued", queued),
		logger.String("capture_mode", string(in.CaptureMode)),
	)
	return nil
}
