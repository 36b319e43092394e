package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/core"
	apperrors "github.com/namelens/chatgate/internal/errors"
	"github.com/namelens/chatgate/internal/server/middleware"
)

const defaultMaxBodyBytes int64 = 1 << 20

// ChatService is the part of ailink.Service the HTTP layer needs.
type ChatService interface {
	Send(ctx context.Context, req ailink.SendRequest) (*ailink.SendResponse, error)
	Budget(ctx context.Context) (core.RateBudget, error)
}

// ChatRequestBody is the POST /v1/chat payload.
type ChatRequestBody struct {
	Model    string            `json:"model,omitempty" validate:"omitempty,max=200"`
	Messages []ChatMessageBody `json:"messages" validate:"required,min=1,dive"`
}

type ChatMessageBody struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"max=1000000"`
}

// ChatResponseBody is returned on success.
type ChatResponseBody struct {
	Content   string        `json:"content"`
	Model     string        `json:"model"`
	Usage     *ailink.Usage `json:"usage,omitempty"`
	Demo      bool          `json:"demo"`
	RequestID string        `json:"request_id,omitempty"`
}

// BudgetResponseBody reports the shared admission budget.
type BudgetResponseBody struct {
	Capacity        float64 `json:"capacity"`
	RefillPerSecond float64 `json:"refill_per_second"`
	Tokens          float64 `json:"tokens"`
	Available       bool    `json:"available"`
	LastRefill      string  `json:"last_refill"`
}

// ChatHandler serves the facade over HTTP. Every request draws from the one
// admission budget owned by Service.
type ChatHandler struct {
	Service      ChatService
	Logger       *zap.Logger
	MaxBodyBytes int64

	validate *validator.Validate
}

// NewChatHandler returns a handler using service.
func NewChatHandler(service ChatService, logger *zap.Logger, maxBodyBytes int64) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &ChatHandler{
		Service:      service,
		Logger:       logger,
		MaxBodyBytes: maxBodyBytes,
		validate:     validator.New(),
	}
}

// Chat handles POST /v1/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body ChatRequestBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, r, apperrors.WrapInvalidInput(ctx, err, "request body too large"))
			return
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(ctx, err, "request body is not valid JSON"))
		return
	}

	if err := h.validate.Struct(body); err != nil {
		envelope := apperrors.WrapValidationError(ctx, err, "request body failed validation")
		envelope = envelope.WithDetails(map[string]interface{}{"fields": fieldErrors(err)})
		respondWithError(w, r, envelope)
		return
	}

	req := ailink.SendRequest{Model: strings.TrimSpace(body.Model), Messages: make([]ailink.Message, 0, len(body.Messages))}
	for _, msg := range body.Messages {
		req.Messages = append(req.Messages, ailink.Message{Role: ailink.Role(msg.Role), Content: msg.Content})
	}

	resp, err := h.Service.Send(ctx, req)
	if err != nil {
		h.Logger.Debug("chat request failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.String("subject", middleware.GetSubject(ctx)),
			zap.Error(err))
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponseBody{
		Content:   resp.Content,
		Model:     resp.Model,
		Usage:     resp.Usage,
		Demo:      resp.Demo,
		RequestID: middleware.GetRequestID(ctx),
	})
}

// Budget handles GET /v1/budget.
func (h *ChatHandler) Budget(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.Budget(r.Context())
	if err != nil {
		respondWithError(w, r, core.Offline(fmt.Errorf("read admission state: %w", err)))
		return
	}
	writeJSON(w, http.StatusOK, BudgetResponseBody{
		Capacity:        snap.Capacity,
		RefillPerSecond: snap.RefillPerSecond,
		Tokens:          snap.Tokens,
		Available:       snap.Tokens >= 1,
		LastRefill:      snap.LastRefill.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func fieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
	}
	return out
}
