package controller

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/playbridge/server/internal/domain"
	"github.com/playbridge/server/internal/service/session"
	"github.com/playbridge/server/pkg/wsrouter"
)

type iSessionService interface {
	CreateSession(ctx context.Context) (*session.Session, error)
	GetSession(sessionId string) (*session.Session, error)
	RemoveSession(ctx context.Context, sessionId string) error
	SessionIds() []string
	LoadSource(ctx context.Context, sessionId, src string) (*domain.VideoDescriptor, error)
}

type controller struct {
	sessionService iSessionService
	upgrader       websocket.Upgrader
	validate       *validator.Validate
	wsmux          *wsrouter.WSRouter
	logger         *slog.Logger

	mu    sync.Mutex
	hosts map[*websocket.Conn]*hostConn
}

func NewController(sessionService iSessionService, logger *slog.Logger) *controller {
	c := &controller{
		sessionService: sessionService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		hosts:    make(map[*websocket.Conn]*hostConn),
	}
	c.wsmux = c.getWSRouter()

	return c
}
