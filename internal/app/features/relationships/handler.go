// internal/app/features/relationships/handler.go
package relationships

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	apierrors "github.com/dalemusser/coachhub/internal/app/features/errors"
	"github.com/dalemusser/coachhub/internal/app/lifecycle"
	"github.com/dalemusser/coachhub/internal/app/policy/relationshippolicy"
	"github.com/dalemusser/coachhub/internal/app/system/authz"
	"github.com/dalemusser/coachhub/internal/app/system/limits"
	"github.com/dalemusser/coachhub/internal/app/system/ratelimit"
	"github.com/dalemusser/coachhub/internal/app/system/timeouts"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Engine is the slice of the lifecycle engine the handlers drive.
// *lifecycle.Engine satisfies it.
type Engine interface {
	CreateConnectionRequest(ctx context.Context, actor lifecycle.Actor, clientEmail string) (lifecycle.ConnectionRequest, error)
	RespondToRequest(ctx context.Context, id, responderID primitive.ObjectID, newStatus models.RelationshipStatus) (models.Relationship, error)
	Deactivate(ctx context.Context, id primitive.ObjectID, actor lifecycle.Actor) (models.Relationship, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID, actor lifecycle.Actor, reason string) (models.Relationship, error)
	Restore(ctx context.Context, id primitive.ObjectID, actor lifecycle.Actor) (models.Relationship, error)
	UpdatePermissions(ctx context.Context, id primitive.ObjectID, actor lifecycle.Actor, grants models.Grants) (models.Relationship, error)
	GetUserRelationships(ctx context.Context, userID primitive.ObjectID) (lifecycle.UserRelationships, error)
	Get(ctx context.Context, id primitive.ObjectID, actor lifecycle.Actor) (models.Relationship, error)
}

// Handler serves the coaching relationship endpoints.
type Handler struct {
	Engine Engine
	Log    *zap.Logger

	// CreateLimit caps connection requests per signed-in user. Nil means
	// unlimited.
	CreateLimit *ratelimit.Limiter

	validate *validator.Validate
}

// NewHandler constructs a relationships Handler.
func NewHandler(engine Engine, logger *zap.Logger) *Handler {
	v := validator.New()
	// Report JSON names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{Engine: engine, Log: logger, validate: v}
}

// ServeCreate handles POST /relationships.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.Actor(r)
	if !ok {
		apierrors.Unauthorized(w)
		return
	}
	var req createRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "create connection request")
	defer cancel()

	res, err := h.Engine.CreateConnectionRequest(ctx, actor, req.ClientEmail)
	if err != nil {
		apierrors.Lifecycle(w, h.Log, err)
		return
	}
	status := http.StatusCreated
	if res.Invitation != nil {
		status = http.StatusAccepted
	}
	apierrors.JSON(w, status, res)
}

// ServeList handles GET /relationships.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.Actor(r)
	if !ok {
		apierrors.Unauthorized(w)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list relationships")
	defer cancel()

	res, err := h.Engine.GetUserRelationships(ctx, actor.UserID)
	if err != nil {
		apierrors.Lifecycle(w, h.Log, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, res)
}

// ServeGet handles GET /relationships/{id}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get relationship")
	defer cancel()

	rel, err := h.Engine.Get(ctx, id, actor)
	if err != nil {
		apierrors.Lifecycle(w, h.Log, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, rel)
}

// ServeRespond handles POST /relationships/{id}/respond.
func (h *Handler) ServeRespond(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "respond to request")
	defer cancel()

	rel, err := h.Engine.RespondToRequest(ctx, id, actor.UserID, models.RelationshipStatus(req.Status))
	if err != nil {
		apierrors.Lifecycle(w, h.Log, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, rel)
}

// ServeDeactivate handles POST /relationships/{id}/deactivate.
func (h *Handler) ServeDeactivate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "deactivate relationship")
	defer cancel()

	rel, err := h.Engine.Deactivate(ctx, id, actor)
	if err != nil {
		apierrors.Lifecycle(w, h.Log, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, rel)
}

// ServeDelete handles DELETE /relationships/{id}. The body is optional.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "soft delete relationship")
	defer cancel()

	rel, err := h.Engine.SoftDelete(ctx, id, actor, req.Reason)
	if err != nil {
		apierrors.Lifecycle(w, h.Log, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, rel)
}

// ServeRestore handles POST /relationships/{id}/restore (admins).
func (h *Handler) ServeRestore(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "restore relationship")
	defer cancel()

	rel, err := h.Engine.Restore(ctx, id, actor)
	if err != nil {
		apierrors.Lifecycle(w, h.Log, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, rel)
}

// ServePermissions handles PUT /relationships/{id}/permissions.
func (h *Handler) ServePermissions(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var body map[string]bool
	if !h.decodeRaw(w, r, &body, true) {
		return
	}
	if err := h.validate.Var(body, permissionsRule); err != nil {
		apierrors.Validation(w, err)
		return
	}
	grants := make(models.Grants, len(body))
	for name, v := range body {
		c, _ := models.ParseCapability(name)
		grants[c] = v
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "update permissions")
	defer cancel()

	rel, err := h.Engine.UpdatePermissions(ctx, id, actor, grants)
	if err != nil {
		apierrors.Lifecycle(w, h.Log, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, rel)
}

// ServeCapabilities handles GET /relationships/{id}/capabilities: what the
// caller may see of the other participant through this relationship.
func (h *Handler) ServeCapabilities(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "relationship capabilities")
	defer cancel()

	rel, err := h.Engine.Get(ctx, id, actor)
	if err != nil {
		apierrors.Lifecycle(w, h.Log, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, capabilitiesResponse{
		RelationshipID: rel.ID.Hex(),
		Status:         string(rel.Status),
		Capabilities:   relationshippolicy.Capabilities(rel, actor.UserID).List(),
	})
}

// helpers

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (lifecycle.Actor, primitive.ObjectID, bool) {
	actor, ok := authz.Actor(r)
	if !ok {
		apierrors.Unauthorized(w)
		return lifecycle.Actor{}, primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.BadRequest(w, "invalid relationship id")
		return lifecycle.Actor{}, primitive.NilObjectID, false
	}
	return actor, id, true
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, required bool) bool {
	if !h.decodeRaw(w, r, dst, required) {
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		apierrors.Validation(w, err)
		return false
	}
	return true
}

func (h *Handler) decodeRaw(w http.ResponseWriter, r *http.Request, dst interface{}, required bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limits.MaxJSONBodySize))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) && !required {
		return true
	}
	if err != nil {
		apierrors.BadRequest(w, "malformed JSON body")
		return false
	}
	return true
}
