package nats

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/messaging"
	"github.com/cohortlabs/cohort-stack/common/middleware"
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
	"github.com/cohortlabs/cohort-stack/membership/internal/tokens"
)

// MembershipUpdater applies membership edits.
type MembershipUpdater interface {
	UpdateMembership(ctx context.Context, req *models.Request) (*models.Response, error)
}

// GroupManager manages groups.
type GroupManager interface {
	CreateGroup(ctx context.Context, req *models.Request) (*models.Response, error)
	UpdateGroup(ctx context.Context, req *models.Request) (*models.Response, error)
	DeleteGroup(ctx context.Context, req *models.Request) (*models.Response, error)
	SearchGroups(ctx context.Context, req *models.Request) (*models.Response, error)
}

// TokenVerifier resolves a bearer token to its claims.
type TokenVerifier interface {
	Verify(token string) (*tokens.Claims, error)
}

type operationFunc func(ctx context.Context, req *models.Request) (*models.Response, error)

type route struct {
	subject   string
	operation string
	handle    operationFunc
}

// Handler processes request messages for the membership service.
type Handler struct {
	client   messaging.Client
	routes   []route
	verifier TokenVerifier
	logger   *logging.Logger
	subs     []messaging.Subscription
}

// NewHandler creates a Handler. verifier may be nil, in which case the caller
// identity is taken from the request context as sent.
func NewHandler(client messaging.Client, membership MembershipUpdater, groups GroupManager, verifier TokenVerifier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		client:   client,
		verifier: verifier,
		logger:   logger,
		routes: []route{
			{messaging.SubjectGroupsMembershipUpdate, models.OperationUpdateMembership, membership.UpdateMembership},
			{messaging.SubjectGroupsCreate, models.OperationCreateGroup, groups.CreateGroup},
			{messaging.SubjectGroupsUpdate, models.OperationUpdateGroup, groups.UpdateGroup},
			{messaging.SubjectGroupsDelete, models.OperationDeleteGroup, groups.DeleteGroup},
			{messaging.SubjectGroupsSearch, models.OperationSearchGroups, groups.SearchGroups},
		},
	}
}

// Start queue-subscribes to every request subject.
func (h *Handler) Start(ctx context.Context) error {
	for _, r := range h.routes {
		sub, err := h.client.QueueSubscribe(r.subject, messaging.QueueGroupWorkers, h.serve(r))
		if err != nil {
			h.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", r.subject, err)
		}
		h.subs = append(h.subs, sub)
	}
	h.logger.InfoContext(ctx, "NATS handler started", logging.Count(len(h.subs)), "queue", messaging.QueueGroupWorkers)
	return nil
}

// Stop unsubscribes from all subjects.
func (h *Handler) Stop() error {
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe", "subject", sub.Subject(), logging.Error(err))
		}
	}
	h.subs = nil
	h.logger.Info("NATS handler stopped")
	return nil
}

func (h *Handler) serve(r route) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		c, err := codecFor(msg.Header(messaging.HeaderContentType))
		if err != nil {
			h.logger.WarnContext(ctx, "rejecting message", "subject", msg.Subject, logging.Error(err))
			return h.reply(ctx, msg, jsonCodec, NewErrorResponse("", errcode.InvalidRequestData()))
		}

		req, err := h.decode(c, msg, r.operation)
		if err != nil {
			var id string
			if req != nil {
				id = req.ID
			}
			return h.reply(ctx, msg, c, NewErrorResponse(id, errcode.Classify(err, string(errcode.KindInvalidRequestData))))
		}
		if middleware.GetRequestID(ctx) == "" {
			ctx = middleware.WithRequestID(ctx, req.ID)
		}

		resp, err := r.handle(ctx, req)
		if err != nil {
			return h.reply(ctx, msg, c, NewErrorResponse(req.ID, errcode.Classify(err, string(errcode.KindDownstreamFailure))))
		}
		return h.reply(ctx, msg, c, resp)
	}
}

// decode turns a message into a Request with normalized context and payload.
// A verified bearer token overrides the caller in the context.
func (h *Handler) decode(c codec, msg *messaging.Message, operation string) (*models.Request, error) {
	var env Envelope
	if err := c.unmarshal(msg.Data, &env); err != nil {
		return nil, errcode.InvalidRequestData()
	}

	req := &models.Request{
		ID:        env.ID,
		Operation: operation,
		Context:   mapping(env.Context),
		Payload:   mapping(env.Request),
	}
	if value.IsBlank(req.ID) {
		req.ID = uuid.NewString()
	}
	if env.Operation != "" && env.Operation != operation {
		return req, errcode.InvalidParamValue(env.Operation, "operation")
	}

	if token, ok := bearerToken(msg.Header(messaging.HeaderAuthorization)); ok && h.verifier != nil {
		claims, err := h.verifier.Verify(token)
		if err != nil {
			return req, errcode.NotAuthorized(string(errcode.KindNotAuthorized))
		}
		req.Context[models.ContextUserID] = claims.UserID
	}
	return req, nil
}

func (h *Handler) reply(ctx context.Context, msg *messaging.Message, c codec, body any) error {
	if msg.Reply == "" {
		return nil
	}
	data, err := c.marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	out := &messaging.Message{
		Subject:  msg.Reply,
		Data:     data,
		Metadata: map[string]string{messaging.HeaderContentType: c.contentType},
	}
	if id := middleware.GetRequestID(ctx); id != "" {
		out.Metadata[messaging.HeaderRequestID] = id
	}
	return h.client.PublishMsg(ctx, out)
}

// mapping normalizes a decoded envelope section. Absent sections become
// empty mappings.
func mapping(v any) value.Mapping {
	m, _ := value.Normalize(v).(value.Mapping)
	if m == nil {
		m = value.Mapping{}
	}
	return m
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
