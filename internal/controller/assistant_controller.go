package controller

import (
	"errors"

	"assistant-proxy-be/internal/dto"
	"assistant-proxy-be/internal/pkg/serverutils"
	"assistant-proxy-be/internal/service"
	"assistant-proxy-be/pkg/upstream"

	"github.com/gofiber/fiber/v2"
)

// BrowserSessionHeader carries the key of the visitor's browsing session.
const BrowserSessionHeader = "X-Browser-Session"

type IAssistantController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	Interact(ctx *fiber.Ctx) error
	SaveTranscript(ctx *fiber.Ctx) error
	ListTurns(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type assistantController struct {
	assistantService service.IAssistantService
	sessionService   service.ISessionService
	tokenSecret      string
}

func NewAssistantController(assistantService service.IAssistantService, sessionService service.ISessionService, tokenSecret string) IAssistantController {
	return &assistantController{
		assistantService: assistantService,
		sessionService:   sessionService,
		tokenSecret:      tokenSecret,
	}
}

func (c *assistantController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/assistant")
	h.Get("/health", c.Health)
	h.Post("/session", c.CreateSession)

	guarded := serverutils.SessionTokenMiddleware(c.tokenSecret)
	h.Post("/interact", guarded, c.Interact)
	h.Post("/transcript", guarded, c.SaveTranscript)
	h.Get("/turns", guarded, c.ListTurns)
}

// CreateSession returns the correlation id of the calling browser session
// @Summary Create or resume an assistant session
// @Tags Assistant
// @Produce json
// @Success 200 {object} dto.CreateSessionResponse
// @Router /api/assistant/session [post]
func (c *assistantController) CreateSession(ctx *fiber.Ctx) error {
	res, err := c.sessionService.CreateSession(ctx.UserContext(), ctx.Get(BrowserSessionHeader))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Session ready", res))
}

// Interact forwards one launch or text action to the dialog runtime
// @Summary Proxy an assistant interaction
// @Tags Assistant
// @Accept json
// @Produce json
// @Success 200 {object} dto.InteractResponse
// @Router /api/assistant/interact [post]
func (c *assistantController) Interact(ctx *fiber.Ctx) error {
	var req dto.InteractRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.TypedErrorResponse(fiber.StatusBadRequest, serverutils.ErrorTypeValidation, "Invalid request body"))
	}
	if !tokenMatches(ctx, req.UserId) {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.TypedErrorResponse(fiber.StatusUnauthorized, serverutils.ErrorTypeUnauthorized, "Token does not match user_id"))
	}

	res, err := c.assistantService.Interact(ctx.UserContext(), &req)
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Interaction completed", res))
}

// SaveTranscript asks the transcript API to persist a conversation
// @Summary Save a conversation transcript
// @Tags Assistant
// @Accept json
// @Produce json
// @Success 200 {object} dto.SaveTranscriptResponse
// @Router /api/assistant/transcript [post]
func (c *assistantController) SaveTranscript(ctx *fiber.Ctx) error {
	var req dto.SaveTranscriptRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.TypedErrorResponse(fiber.StatusBadRequest, serverutils.ErrorTypeValidation, "Invalid request body"))
	}
	if !tokenMatches(ctx, req.UserId) {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.TypedErrorResponse(fiber.StatusUnauthorized, serverutils.ErrorTypeUnauthorized, "Token does not match user_id"))
	}

	res, err := c.assistantService.SaveTranscript(ctx.UserContext(), &req)
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Transcript saved", res))
}

func (c *assistantController) ListTurns(ctx *fiber.Ctx) error {
	userId := ctx.Query("user_id", "")
	if !tokenMatches(ctx, userId) {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.TypedErrorResponse(fiber.StatusUnauthorized, serverutils.ErrorTypeUnauthorized, "Token does not match user_id"))
	}

	res, err := c.assistantService.ListTurns(ctx.UserContext(), userId, ctx.QueryInt("limit", 50))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Turns retrieved", res))
}

func (c *assistantController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Assistant status", c.assistantService.Health(ctx.UserContext())))
}

// tokenMatches is true when no token was required or its sid equals userId.
func tokenMatches(ctx *fiber.Ctx, userId string) bool {
	sid, ok := serverutils.SessionIDFromToken(ctx)
	if !ok {
		return true
	}
	return sid == userId
}

func writeError(ctx *fiber.Ctx, err error) error {
	var verr *serverutils.ValidationError
	if errors.As(err, &verr) {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.TypedErrorResponse(fiber.StatusBadRequest, serverutils.ErrorTypeValidation, verr.Error()))
	}

	// upstream answers leave untouched
	if rej, ok := upstream.AsRejection(err); ok {
		if rej.ContentType != "" {
			ctx.Set(fiber.HeaderContentType, rej.ContentType)
		}
		return ctx.Status(rej.Status).Send(rej.Body)
	}

	if upstream.IsTransport(err) {
		return ctx.Status(fiber.StatusBadGateway).JSON(serverutils.TypedErrorResponse(fiber.StatusBadGateway, serverutils.ErrorTypeTransport, "Assistant upstream unreachable"))
	}

	var cerr *upstream.ConfigError
	if errors.As(err, &cerr) {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.TypedErrorResponse(fiber.StatusInternalServerError, serverutils.ErrorTypeConfiguration, cerr.Error()))
	}
	if errors.Is(err, upstream.ErrNotConfigured) {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.TypedErrorResponse(fiber.StatusInternalServerError, serverutils.ErrorTypeConfiguration, "Assistant upstream is not configured"))
	}

	if errors.Is(err, service.ErrAuditDisabled) {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(fiber.StatusNotFound, err.Error()))
	}
	if errors.Is(err, service.ErrSessionUnavailable) {
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(serverutils.ErrorResponse(fiber.StatusServiceUnavailable, err.Error()))
	}

	return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.TypedErrorResponse(fiber.StatusInternalServerError, serverutils.ErrorTypeInternal, "Internal server error"))
}
