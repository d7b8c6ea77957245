package notification

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// NotificationService persists in-app notifications and pushes live
// events to websocket subscribers of the same tenant. It is the
// workflow engine's event sink.
type NotificationService interface {
	Notify(ctx context.Context, tenantID, userID, title, message, link string) error
	Broadcast(tenantID string, event interface{})
	ListForUser(ctx context.Context, tenantID, userID string, limit, offset int64) ([]Notification, error)
	MarkRead(ctx context.Context, tenantID, userID, id string) (bool, error)

	Register(tenantID string, conn *websocket.Conn)
	Unregister(conn *websocket.Conn)
}

// wsWriter is the slice of the websocket connection the hub needs.
type wsWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// subscriber serializes writes to one connection; the fasthttp
// websocket allows at most one concurrent writer per conn.
type subscriber struct {
	tenantID string
	writeMu  sync.Mutex
}

type NotificationServiceImpl struct {
	Repo   NotificationRepository
	Logger *zap.Logger

	mu    sync.RWMutex
	conns map[wsWriter]*subscriber
}

func NewNotificationService(repo NotificationRepository, logger *zap.Logger) NotificationService {
	return &NotificationServiceImpl{
		Repo:   repo,
		Logger: logger,
		conns:  make(map[wsWriter]*subscriber),
	}
}

func (s *NotificationServiceImpl) Notify(ctx context.Context, tenantID, userID, title, message, link string) error {
	notification := &Notification{
		TenantID: tenantID,
		UserID:   userID,
		Title:    title,
		Message:  message,
		Type:     NotificationTypeApproval,
		Link:     link,
	}
	if err := s.Repo.Create(ctx, notification); err != nil {
		return err
	}

	s.Broadcast(tenantID, map[string]interface{}{
		"event":        "notification",
		"notification": notification,
	})
	return nil
}

func (s *NotificationServiceImpl) Broadcast(tenantID string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.Logger.Warn("failed to marshal websocket event", zap.Error(err))
		return
	}

	// Snapshot under the read lock, write outside it so a slow client
	// never blocks Register/Unregister.
	type target struct {
		conn wsWriter
		sub  *subscriber
	}
	s.mu.RLock()
	targets := make([]target, 0, len(s.conns))
	for conn, sub := range s.conns {
		if sub.tenantID == tenantID {
			targets = append(targets, target{conn: conn, sub: sub})
		}
	}
	s.mu.RUnlock()

	for _, t := range targets {
		t.sub.writeMu.Lock()
		err := t.conn.WriteMessage(websocket.TextMessage, payload)
		t.sub.writeMu.Unlock()
		if err != nil {
			s.Logger.Debug("websocket write failed", zap.Error(err))
		}
	}
}

func (s *NotificationServiceImpl) ListForUser(ctx context.Context, tenantID, userID string, limit, offset int64) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Repo.ListByUser(ctx, tenantID, userID, limit, offset)
}

func (s *NotificationServiceImpl) MarkRead(ctx context.Context, tenantID, userID, id string) (bool, error) {
	return s.Repo.MarkRead(ctx, tenantID, userID, id)
}

func (s *NotificationServiceImpl) Register(tenantID string, conn *websocket.Conn) {
	s.register(tenantID, conn)
}

func (s *NotificationServiceImpl) Unregister(conn *websocket.Conn) {
	s.unregister(conn)
}

func (s *NotificationServiceImpl) register(tenantID string, conn wsWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = &subscriber{tenantID: tenantID}
}

func (s *NotificationServiceImpl) unregister(conn wsWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}
