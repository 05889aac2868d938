package wsrouter

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error

type WSRouter struct {
	routes map[string]HandlerFunc
}

func New() *WSRouter {
	return &WSRouter{routes: make(map[string]HandlerFunc)}
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// ServeConn reads messages until the connection fails and dispatches each to
// the handler registered for its type. Handler errors are reported back to
// the peer as ERROR messages without tearing the connection down.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	for {
		var msg message
		err := conn.ReadJSON(&msg)
		if err != nil {
			return err
		}

		handler, exists := r.routes[msg.Type]
		if !exists {
			conn.WriteJSON(map[string]string{"error": "Unknown message type"})
			continue
		}

		ctx := context.WithValue(ctx, messageTypeKey, msg.Type)
		if err := handler(ctx, conn, msg.Payload); err != nil {
			conn.WriteJSON(message{Type: "ERROR", Payload: mustMarshalError(err)})
		}
	}
}

func mustMarshalError(err error) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{"message": err.Error()})
	return payload
}
