package mutate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cihanisildar/abroado-client/internal/api"
	"github.com/cihanisildar/abroado-client/internal/cache"
	"github.com/cihanisildar/abroado-client/internal/content"
	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("cache store is required")
	errMissingAPIClient  = errors.New("api client is required")
	errMissingIDProvider = errors.New("id provider is required")
	errUnknownTarget     = errors.New("unknown target kind")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries an operation.reason code for user-facing reporting.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error { return e.err }

func (e *ServiceError) Code() string { return e.code }

const (
	opCoordinatorNew = "mutate.coordinator.new"
	opVote           = "mutate.vote"
	opToggleSave     = "mutate.toggle_save"
	opCreateComment  = "mutate.create_comment"
	opDeleteComment  = "mutate.delete_comment"
	opSendMessage    = "mutate.send_message"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// TargetKind names the votable/savable entity family a mutation addresses.
type TargetKind string

const (
	TargetPost          TargetKind = "post"
	TargetComment       TargetKind = "comment"
	TargetCityReview    TargetKind = "city-review"
	TargetReviewComment TargetKind = "review-comment"
)

func (k TargetKind) family() ([]cache.Kind, error) {
	switch k {
	case TargetPost:
		return cache.PostKinds, nil
	case TargetComment:
		return cache.CommentKinds, nil
	case TargetCityReview:
		return cache.CityReviewKinds, nil
	case TargetReviewComment:
		return cache.ReviewCommentKinds, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownTarget, k)
	}
}

func (k TargetKind) basePath(entityID string) (string, error) {
	switch k {
	case TargetPost:
		return "/posts/" + entityID, nil
	case TargetComment:
		return "/comments/" + entityID, nil
	case TargetCityReview:
		return "/reviews/" + entityID, nil
	case TargetReviewComment:
		return "/reviews/comments/" + entityID, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownTarget, k)
	}
}

// APIClient is the slice of the REST client the coordinator depends on.
type APIClient interface {
	Mutate(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// IDProvider issues temporary ids for optimistic echoes.
type IDProvider interface {
	NewID() (string, error)
}

// CoordinatorConfig bundles the coordinator's collaborators.
type CoordinatorConfig struct {
	Store      *cache.Store
	API        APIClient
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Coordinator wraps every write with an optimistic cache patch, request
// dispatch, and reconcile-or-rollback. The visible effect of an action is
// applied to all relevant views before the network call resolves; on
// failure the saved snapshot restores them exactly.
type Coordinator struct {
	store  *cache.Store
	api    APIClient
	ids    IDProvider
	clock  func() time.Time
	logger *zap.Logger
}

// NewCoordinator constructs a Coordinator with validated configuration.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opCoordinatorNew, "missing_store", errMissingStore)
	}
	if cfg.API == nil {
		return nil, newServiceError(opCoordinatorNew, "missing_api_client", errMissingAPIClient)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opCoordinatorNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Coordinator{
		store:  cfg.Store,
		api:    cfg.API,
		ids:    cfg.IDProvider,
		clock:  clock,
		logger: logger,
	}, nil
}

// Vote applies the optimistic vote transform across every view holding the
// entity, then dispatches the request. The optimistic result is trusted as
// final on success; the server's counters are not re-queried.
func (c *Coordinator) Vote(ctx context.Context, kind TargetKind, entityID string, direction content.VoteDirection) error {
	if direction != content.VoteUp && direction != content.VoteDown {
		// Clearing a vote is expressed by re-voting the same direction.
		return newServiceError(opVote, "invalid_direction", fmt.Errorf("direction %q", direction))
	}
	family, err := kind.family()
	if err != nil {
		return newServiceError(opVote, "invalid_target", err)
	}
	path, err := kind.basePath(entityID)
	if err != nil {
		return newServiceError(opVote, "invalid_target", err)
	}

	snapshot := c.store.Propagate(family, entityID, content.ApplyVote(direction))

	_, err = c.api.Mutate(ctx, http.MethodPost, path+"/vote", map[string]string{"direction": string(direction)})
	if err != nil {
		if errors.Is(err, api.ErrConflict) {
			// A concurrent session already applied this vote change; keep
			// the optimistic state.
			c.logger.Debug("vote conflict treated as success",
				zap.String("entity_id", entityID), zap.Error(err))
			return nil
		}
		c.store.Restore(snapshot)
		c.logError(opVote, "request_failed", err,
			zap.String("entity_id", entityID), zap.String("direction", string(direction)))
		return newServiceError(opVote, "request_failed", err)
	}
	return nil
}

// ToggleSave flips the saved flag on a post or city review. "Already
// saved"/"not saved" conflicts are idempotent success: concurrent tabs or
// devices may race, and both converge on the same state.
func (c *Coordinator) ToggleSave(ctx context.Context, kind TargetKind, entityID string) error {
	family, err := kind.family()
	if err != nil {
		return newServiceError(opToggleSave, "invalid_target", err)
	}
	path, err := kind.basePath(entityID)
	if err != nil {
		return newServiceError(opToggleSave, "invalid_target", err)
	}

	wasSaved := false
	if entity, ok := c.store.FindEntity(family, entityID); ok {
		if savable, ok := entity.(content.Savable); ok {
			wasSaved = savable.Saved()
		}
	}

	snapshot := c.store.Propagate(family, entityID, content.ToggleSave())

	method := http.MethodPost
	if wasSaved {
		method = http.MethodDelete
	}
	_, err = c.api.Mutate(ctx, method, path+"/save", nil)
	if err != nil {
		if errors.Is(err, api.ErrConflict) {
			c.logger.Debug("save conflict treated as success",
				zap.String("entity_id", entityID), zap.Error(err))
			return nil
		}
		c.store.Restore(snapshot)
		c.logError(opToggleSave, "request_failed", err, zap.String("entity_id", entityID))
		return newServiceError(opToggleSave, "request_failed", err)
	}
	return nil
}

type commentPayload struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ParentID  string    `json:"parent_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateComment inserts an optimistic echo with a temporary id, then
// replaces it in place with the server payload. Comment creation cannot
// trust the optimistic record as final: the echo needs a real id before it
// can be the target of further actions. Returns the confirmed comment id.
func (c *Coordinator) CreateComment(ctx context.Context, postID, parentID, body string) (string, error) {
	tempID, err := c.tempID()
	if err != nil {
		return "", newServiceError(opCreateComment, "id_generation_failed", err)
	}

	echo := &content.Comment{
		ID:        tempID,
		PostID:    postID,
		ParentID:  parentID,
		Body:      body,
		Pending:   true,
		CreatedAt: c.clock().UTC(),
	}
	commentsKey := cache.ViewKey{Kind: cache.KindComments, Selector: postID}
	appended := c.store.Append(commentsKey, echo)
	countSnapshot := c.store.Propagate(cache.PostKinds, postID, adjustCommentCount(1))

	data, err := c.api.Mutate(ctx, http.MethodPost, "/posts/"+postID+"/comments",
		map[string]string{"body": body, "parent_id": parentID})
	if err != nil {
		if appended {
			c.store.Remove(commentsKey, tempID)
		}
		c.store.Restore(countSnapshot)
		c.logError(opCreateComment, "request_failed", err, zap.String("post_id", postID))
		return "", newServiceError(opCreateComment, "request_failed", err)
	}

	var payload commentPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ID == "" {
		if appended {
			c.store.Remove(commentsKey, tempID)
		}
		c.store.Restore(countSnapshot)
		c.logError(opCreateComment, "invalid_response", err, zap.String("post_id", postID))
		return "", newServiceError(opCreateComment, "invalid_response", err)
	}

	confirmed := &content.Comment{
		ID:        payload.ID,
		PostID:    postID,
		ParentID:  payload.ParentID,
		AuthorID:  payload.AuthorID,
		Body:      payload.Body,
		CreatedAt: payload.CreatedAt,
	}
	if appended {
		c.store.ReplaceByID(commentsKey, tempID, confirmed)
	}
	return payload.ID, nil
}

// DeleteComment removes the comment optimistically and restores the view on
// failure.
func (c *Coordinator) DeleteComment(ctx context.Context, postID, commentID string) error {
	commentsKey := cache.ViewKey{Kind: cache.KindComments, Selector: postID}
	prior, held := c.store.Get(commentsKey)
	removed := c.store.Remove(commentsKey, commentID)
	countSnapshot := c.store.Propagate(cache.PostKinds, postID, adjustCommentCount(-1))

	_, err := c.api.Mutate(ctx, http.MethodDelete, "/comments/"+commentID, nil)
	if err != nil {
		if errors.Is(err, api.ErrConflict) {
			// Already deleted elsewhere; the optimistic removal stands.
			return nil
		}
		if held && removed {
			c.store.Put(commentsKey, prior)
		}
		c.store.Restore(countSnapshot)
		c.logError(opDeleteComment, "request_failed", err, zap.String("comment_id", commentID))
		return newServiceError(opDeleteComment, "request_failed", err)
	}
	return nil
}

type messagePayload struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	AuthorID string    `json:"author_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// SendMessage appends an optimistic echo to the room's message view and
// reconciles it with the server-confirmed record by the temporary id this
// call minted. Push-delivered copies of the same content from other
// delivery paths are never matched against the echo; that correlation is
// strictly local to this mutation.
func (c *Coordinator) SendMessage(ctx context.Context, roomID, body string) (*content.ChatMessage, error) {
	tempID, err := c.tempID()
	if err != nil {
		return nil, newServiceError(opSendMessage, "id_generation_failed", err)
	}

	echo := &content.ChatMessage{
		ID:      tempID,
		RoomID:  roomID,
		Body:    body,
		Pending: true,
		SentAt:  c.clock().UTC(),
	}
	messagesKey := cache.ViewKey{Kind: cache.KindRoomMessages, Selector: roomID}
	appended := c.store.Append(messagesKey, echo)

	data, err := c.api.Mutate(ctx, http.MethodPost, "/chat/rooms/"+roomID+"/messages",
		map[string]string{"body": body})
	if err != nil {
		if appended {
			c.store.Remove(messagesKey, tempID)
		}
		c.logError(opSendMessage, "request_failed", err, zap.String("room_id", roomID))
		return nil, newServiceError(opSendMessage, "request_failed", err)
	}

	var payload messagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ID == "" {
		if appended {
			c.store.Remove(messagesKey, tempID)
		}
		c.logError(opSendMessage, "invalid_response", err, zap.String("room_id", roomID))
		return nil, newServiceError(opSendMessage, "invalid_response", err)
	}

	confirmed := &content.ChatMessage{
		ID:       payload.ID,
		RoomID:   roomID,
		AuthorID: payload.AuthorID,
		Body:     payload.Body,
		SentAt:   payload.SentAt,
	}
	if appended {
		c.store.ReplaceByID(messagesKey, tempID, confirmed)
	}
	return confirmed, nil
}

func (c *Coordinator) tempID() (string, error) {
	id, err := c.ids.NewID()
	if err != nil {
		return "", err
	}
	return "tmp-" + id, nil
}

func adjustCommentCount(delta int64) content.Transform {
	return func(entity content.Entity) content.Entity {
		post, ok := entity.(*content.Post)
		if !ok {
			return entity
		}
		clone := post.CloneEntity().(*content.Post)
		clone.CommentCount += delta
		if clone.CommentCount < 0 {
			clone.CommentCount = 0
		}
		return clone
	}
}

func (c *Coordinator) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("mutation failed", attrs...)
}
