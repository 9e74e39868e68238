package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/persistence"
	"github.com/wfunc/ludoserver/session"
)

type createRoomRequest struct {
	Name string `json:"name"`
}

// joinRoomRequest takes a new seat. A seat is only taken back with the
// token it was issued with, sent as a bearer token.
type joinRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

type joinRoomResponse struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
	Color    string `json:"color"`
	Token    string `json:"token"`
}

func (s *GameServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.opts.Sessions.Count()})
}

func (s *GameServer) handleListRooms(c *gin.Context) {
	list, err := s.opts.Rooms.ListRooms(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *GameServer) handleJoinableRooms(c *gin.Context) {
	list, err := s.opts.Rooms.JoinableRooms(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *GameServer) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	doc, err := s.opts.Rooms.CreateRoom(c.Request.Context(), req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc.Summary())
}

func (s *GameServer) handleDeleteRoom(c *gin.Context) {
	if err := s.opts.Rooms.DeleteRoom(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *GameServer) handleJoinRoom(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	roomID := c.Param("id")

	playerID := uuid.NewString()
	if token := bearerToken(c); token != "" {
		id, err := s.opts.Issuer.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if id.RoomID != roomID {
			abortWithError(c, models.ErrUnauthorized)
			return
		}
		playerID = id.PlayerID
	}

	p, err := s.opts.Rooms.Join(c.Request.Context(), roomID, playerID, req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.respondJoined(c, roomID, p)
}

// handleQuickJoin seats the caller in the first joinable room, or in a new one.
func (s *GameServer) handleQuickJoin(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	roomID, p, err := s.opts.Rooms.QuickJoin(c.Request.Context(), uuid.NewString(), req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.respondJoined(c, roomID, p)
}

func (s *GameServer) handleRoomScores(c *gin.Context) {
	scores, err := s.opts.Rooms.Scores(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, scores)
}

func (s *GameServer) respondJoined(c *gin.Context, roomID string, p *models.Player) {
	token, err := s.opts.Issuer.Issue(session.Identity{PlayerID: p.ID, RoomID: roomID, Name: p.Name}, s.opts.Clock())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, joinRoomResponse{
		RoomID:   roomID,
		PlayerID: p.ID,
		Color:    string(p.Color),
		Token:    token,
	})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// statusOf maps room errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrRoomFull),
		errors.Is(err, models.ErrGameStarted),
		errors.Is(err, models.ErrRoomConcluded),
		errors.Is(err, persistence.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidMove),
		errors.Is(err, models.ErrNotInRoom):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
