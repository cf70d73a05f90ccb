package web

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/taskpipe/pkg/eventbus"
	"github.com/dukex/taskpipe/pkg/events"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/dukex/taskpipe/pkg/template"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// AuthFlow runs the OAuth handshake on behalf of an account.
type AuthFlow interface {
	Initiate(accountID, provider string) (string, string, error)
	Callback(ctx context.Context, provider, stateToken, code string) (string, error)
}

// SecretService writes account secrets.
type SecretService interface {
	StoreSecret(ctx context.Context, accountID, name, value string) error
	DeleteSecret(ctx context.Context, accountID, name string) error
}

type Handlers struct {
	publisher eventbus.EventPublisher
	flows     flows.Repository
	auth      AuthFlow
	secrets   SecretService
	validator *validator.Validate
	logger    *slog.Logger
}

func NewHandlers(
	logger *slog.Logger,
	publisher eventbus.EventPublisher,
	repository flows.Repository,
	authFlow AuthFlow,
	secretService SecretService,
	validate *validator.Validate,
) *Handlers {
	return &Handlers{
		publisher: publisher,
		flows:     repository,
		auth:      authFlow,
		secrets:   secretService,
		validator: validate,
		logger:    logger.With("module", "web"),
	}
}

// Register mounts every route on router.
func (h *Handlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	router.All("/webhooks/*", h.Webhook)
	router.Post("/flows/:id/run", h.RunFlow)

	// The callback route shares its shape with initiate and must win.
	router.Get("/auth/:provider/callback", h.AuthCallback)
	router.Get("/auth/:account/:provider", h.AuthInitiate)

	router.Put("/accounts/:account/secrets/:name", h.PutSecret)
	router.Delete("/accounts/:account/secrets/:name", h.DeleteSecret)
}

func (h *Handlers) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Webhook turns any inbound call under /webhooks into a webhook trigger event.
func (h *Handlers) Webhook(c fiber.Ctx) error {
	headers := make(map[string]any)
	for name, values := range c.GetReqHeaders() {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}

	query := make(map[string]any)
	for name, value := range c.Queries() {
		query[name] = value
	}

	ev := models.TriggerEvent{
		EventName: models.EventNameWebhook,
		Payload: map[string]any{
			"url":     c.BaseURL() + c.Path(),
			"method":  c.Method(),
			"headers": headers,
			"query":   query,
			"body":    decodeBody(c.Body()),
		},
	}

	if err := h.emit(c.Context(), ev); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{EventName: ev.EventName})
}

// RunFlow emits a manual trigger event addressed to one flow.
func (h *Handlers) RunFlow(c fiber.Ctx) error {
	flowID := c.Params("id")

	_, err := h.flows.Get(c.Context(), flowID)
	if err != nil {
		return handleError(c, err)
	}

	var req RunFlowRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	payload := make(map[string]any, len(req.Payload)+1)
	for key, value := range req.Payload {
		payload[key] = value
	}

	payload["flow_id"] = flowID

	ev := models.TriggerEvent{EventName: models.EventNameManual, Payload: payload}

	if err := h.emit(c.Context(), ev); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{EventName: ev.EventName, FlowID: flowID})
}

// AuthInitiate redirects to the provider authorization page. Clients that
// accept only JSON receive the URL and state instead.
func (h *Handlers) AuthInitiate(c fiber.Ctx) error {
	authURL, state, err := h.auth.Initiate(c.Params("account"), c.Params("provider"))
	if err != nil {
		return handleError(c, err)
	}

	if c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
		return c.JSON(InitiateResponse{AuthURL: authURL, State: state})
	}

	return c.Redirect().Status(fiber.StatusFound).To(authURL)
}

func (h *Handlers) AuthCallback(c fiber.Ctx) error {
	provider := c.Params("provider")

	state := c.Query("state")
	if state == "" {
		return badRequest(c, "Invalid state")
	}

	code := c.Query("code")
	if code == "" {
		return badRequest(c, "Missing authorization code")
	}

	accountID, err := h.auth.Callback(c.Context(), provider, state, code)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(CallbackResponse{AccountID: accountID, Provider: provider})
}

func (h *Handlers) PutSecret(c fiber.Ctx) error {
	var req PutSecretRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.secrets.StoreSecret(c.Context(), c.Params("account"), c.Params("name"), req.Value)
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) DeleteSecret(c fiber.Ctx) error {
	err := h.secrets.DeleteSecret(c.Context(), c.Params("account"), c.Params("name"))
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) emit(ctx context.Context, ev models.TriggerEvent) error {
	event := events.TriggerReceived{
		BaseEvent: events.NewBaseEvent(events.TriggerReceivedEvent),
		Event:     ev,
	}

	if err := h.publisher.Publish(ctx, ev.EventName, event); err != nil {
		h.logger.ErrorContext(ctx, "Failed to publish trigger event", "event_name", ev.EventName, "error", err)

		return err
	}

	h.logger.InfoContext(ctx, "Trigger event accepted", "event_name", ev.EventName, "event_id", event.ID)

	return nil
}

// SecretChangePublisher broadcasts secret writes so that workers drop their
// cached bundle of the account.
func SecretChangePublisher(logger *slog.Logger, publisher eventbus.EventPublisher) secrets.ChangeHook {
	logger = logger.With("module", "web")

	return func(ctx context.Context, accountID string) {
		event := events.AccountSecretsChanged{
			BaseEvent: events.NewBaseEvent(events.AccountSecretsChangedEvent),
			AccountID: accountID,
		}

		if err := publisher.Publish(ctx, accountID, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish AccountSecretsChanged event", "account_id", accountID, "error", err)
		}
	}
}

// decodeBody keeps JSON bodies structured and falls back to the raw text.
func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}

	if decoded, err := template.Decode(body); err == nil {
		return decoded
	}

	return string(body)
}
