package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/cihanisildar/abroado-client/internal/cache"
	"github.com/cihanisildar/abroado-client/internal/content"
	"github.com/cihanisildar/abroado-client/internal/mutate"
	"github.com/cihanisildar/abroado-client/internal/push"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingStore        = errors.New("cache store dependency required")
	errMissingStateSource  = errors.New("connection state dependency required")
	errMissingTypingSource = errors.New("typing state dependency required")
	errMissingMutator      = errors.New("mutation coordinator dependency required")
)

// ConnectionReporter exposes the push channel's current state.
type ConnectionReporter interface {
	State() push.State
}

// TypingReporter exposes volatile typing state per room.
type TypingReporter interface {
	ActiveRooms() []string
	TypingUsers(roomID string) []string
}

// Mutator is the slice of the mutation coordinator the action routes drive.
type Mutator interface {
	Vote(ctx context.Context, kind mutate.TargetKind, entityID string, direction content.VoteDirection) error
	ToggleSave(ctx context.Context, kind mutate.TargetKind, entityID string) error
	CreateComment(ctx context.Context, postID, parentID, body string) (string, error)
	DeleteComment(ctx context.Context, postID, commentID string) error
	SendMessage(ctx context.Context, roomID, body string) (*content.ChatMessage, error)
}

// Dependencies lists the collaborators of the local devtools endpoint.
type Dependencies struct {
	Store      *cache.Store
	Connection ConnectionReporter
	Typing     TypingReporter
	Actions    Mutator
	Logger     *zap.Logger
}

// NewHTTPHandler builds the read-only devtools surface. It binds to
// loopback only and exists so a developer can inspect the cache and the
// channel without attaching a debugger.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Connection == nil {
		return nil, errMissingStateSource
	}
	if deps.Typing == nil {
		return nil, errMissingTypingSource
	}
	if deps.Actions == nil {
		return nil, errMissingMutator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &devtoolsHandler{
		store:      deps.Store,
		connection: deps.Connection,
		typing:     deps.Typing,
		actions:    deps.Actions,
		logger:     logger,
	}

	router.GET("/status", handler.handleStatus)
	router.GET("/views", handler.handleViews)
	router.GET("/rooms/:id/typing", handler.handleRoomTyping)
	router.POST("/actions/vote", handler.handleVote)
	router.POST("/actions/save", handler.handleToggleSave)
	router.POST("/actions/comments", handler.handleCreateComment)
	router.POST("/actions/comments/delete", handler.handleDeleteComment)
	router.POST("/rooms/:id/messages", handler.handleSendMessage)

	return router, nil
}

type devtoolsHandler struct {
	store      *cache.Store
	connection ConnectionReporter
	typing     TypingReporter
	actions    Mutator
	logger     *zap.Logger
}

type statusPayload struct {
	ConnectionState string   `json:"connection_state"`
	ViewCount       int      `json:"view_count"`
	ActiveRooms     []string `json:"active_rooms"`
}

func (h *devtoolsHandler) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusPayload{
		ConnectionState: string(h.connection.State()),
		ViewCount:       h.store.Len(),
		ActiveRooms:     h.typing.ActiveRooms(),
	})
}

type viewPayload struct {
	Kind     string `json:"kind"`
	Selector string `json:"selector,omitempty"`
	Entities int    `json:"entities"`
}

func (h *devtoolsHandler) handleViews(c *gin.Context) {
	keys := h.store.Keys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Selector < keys[j].Selector
	})

	views := make([]viewPayload, 0, len(keys))
	for _, key := range keys {
		entities, _ := h.store.Get(key)
		views = append(views, viewPayload{
			Kind:     string(key.Kind),
			Selector: key.Selector,
			Entities: len(entities),
		})
	}
	c.JSON(http.StatusOK, gin.H{"views": views})
}

func (h *devtoolsHandler) handleRoomTyping(c *gin.Context) {
	roomID := c.Param("id")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room id required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room_id": roomID,
		"typing":  h.typing.TypingUsers(roomID),
	})
}

type voteRequestPayload struct {
	Target    string `json:"target"`
	EntityID  string `json:"entity_id"`
	Direction string `json:"direction"`
}

func (h *devtoolsHandler) handleVote(c *gin.Context) {
	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.EntityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	err := h.actions.Vote(c.Request.Context(),
		mutate.TargetKind(request.Target), request.EntityID, content.VoteDirection(request.Direction))
	if err != nil {
		h.logger.Warn("vote action failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type saveRequestPayload struct {
	Target   string `json:"target"`
	EntityID string `json:"entity_id"`
}

func (h *devtoolsHandler) handleToggleSave(c *gin.Context) {
	var request saveRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.EntityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.actions.ToggleSave(c.Request.Context(), mutate.TargetKind(request.Target), request.EntityID); err != nil {
		h.logger.Warn("save action failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type commentRequestPayload struct {
	PostID    string `json:"post_id"`
	ParentID  string `json:"parent_id"`
	CommentID string `json:"comment_id"`
	Body      string `json:"body"`
}

func (h *devtoolsHandler) handleCreateComment(c *gin.Context) {
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.PostID == "" || request.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	commentID, err := h.actions.CreateComment(c.Request.Context(), request.PostID, request.ParentID, request.Body)
	if err != nil {
		h.logger.Warn("comment action failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": commentID})
}

func (h *devtoolsHandler) handleDeleteComment(c *gin.Context) {
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.PostID == "" || request.CommentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.actions.DeleteComment(c.Request.Context(), request.PostID, request.CommentID); err != nil {
		h.logger.Warn("comment delete action failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type messageRequestPayload struct {
	Body string `json:"body"`
}

func (h *devtoolsHandler) handleSendMessage(c *gin.Context) {
	roomID := c.Param("id")
	var request messageRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || roomID == "" || request.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	message, err := h.actions.SendMessage(c.Request.Context(), roomID, request.Body)
	if err != nil {
		h.logger.Warn("message action failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": message.ID, "room_id": message.RoomID})
}
