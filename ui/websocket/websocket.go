package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	dispatchDomain "github.com/menofreact/whatsapp-sending-engine/dispatch/domain"
	"github.com/menofreact/whatsapp-sending-engine/infrastructure/valkey"
	sessionDomain "github.com/menofreact/whatsapp-sending-engine/session/domain"
	"github.com/menofreact/whatsapp-sending-engine/ui/rest/middleware"
)

const (
	CodeSessionStatus = "SESSION_STATUS"
	CodeQueuePass     = "QUEUE_PASS"
	CodeFetchStatus   = "FETCH_STATUS"
)

type BroadcastMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	TenantID string `json:"-"`
	Result   any    `json:"result"`
}

// envelope is the wire form between servers; TenantID must survive the hop.
type envelope struct {
	BroadcastMessage
	Tenant   string `json:"tenant_id"`
	SenderID string `json:"sender_id"`
}

type SessionStatus struct {
	From sessionDomain.State `json:"from"`
	To   sessionDomain.State `json:"status"`
}

// writer is the part of *websocket.Conn the hub uses
type writer interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type registration struct {
	conn     writer
	tenantID string
}

var (
	clients    = make(map[writer]string)
	register   = make(chan registration)
	unregister = make(chan writer)
	Broadcast  = make(chan BroadcastMessage, 256)

	vkClient *valkey.Client
	wsChan   = "ws_broadcast"
	localID  string
)

// SetValkeyClient initializes the distributed broadcast system
func SetValkeyClient(client *valkey.Client, serverID string) {
	vkClient = client
	localID = serverID
}

// Publish queues a message for the tenant's connections without blocking the caller.
func Publish(message BroadcastMessage) {
	select {
	case Broadcast <- message:
	default:
		logrus.Warnf("[WS] Broadcast buffer full, dropping %s for %s", message.Code, message.TenantID)
	}
}

// PublishSessionStatus matches session.StateListener
func PublishSessionStatus(tenantID string, from, to sessionDomain.State) {
	Publish(BroadcastMessage{
		Code:     CodeSessionStatus,
		Message:  "Session is " + string(to),
		TenantID: tenantID,
		Result:   SessionStatus{From: from, To: to},
	})
}

func PublishPassResult(res dispatchDomain.PassResult) {
	Publish(BroadcastMessage{
		Code:     CodeQueuePass,
		Message:  "Queue pass finished",
		TenantID: res.TenantID,
		Result:   res,
	})
}

func handleRegister(r registration) {
	clients[r.conn] = r.tenantID
	logrus.Debugf("[WS] Connection registered for %s", r.tenantID)
}

func handleUnregister(conn writer) {
	delete(clients, conn)
	logrus.Debug("[WS] Connection unregistered")
}

func broadcastToLocal(message BroadcastMessage) {
	marshalMessage, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for conn, tenantID := range clients {
		if tenantID != message.TenantID {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, marshalMessage); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			closeConnection(conn)
		}
	}
}

func publishToValkey(message BroadcastMessage) {
	if vkClient == nil {
		return
	}

	data, err := json.Marshal(envelope{BroadcastMessage: message, Tenant: message.TenantID, SenderID: localID})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := vkClient.Publish(ctx, wsChan, string(data)); err != nil {
		logrus.Errorf("[WS] Failed to publish to Valkey: %v", err)
	}
}

// decodeRemote returns false for malformed payloads and for our own publications.
func decodeRemote(payload string) (BroadcastMessage, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return BroadcastMessage{}, false
	}
	if env.SenderID == localID {
		return BroadcastMessage{}, false
	}
	msg := env.BroadcastMessage
	msg.TenantID = env.Tenant
	return msg, true
}

func startValkeySubscriber(remote chan<- BroadcastMessage) {
	if vkClient == nil {
		return
	}

	logrus.Info("[WS] Starting Valkey Pub/Sub subscriber for distributed events")
	go func() {
		inner := vkClient.Inner()
		err := inner.Receive(context.Background(), inner.B().Subscribe().Channel(vkClient.Key(wsChan)).Build(), func(msg valkeylib.PubSubMessage) {
			if decoded, ok := decodeRemote(msg.Message); ok {
				remote <- decoded
			}
		})
		if err != nil {
			logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
		}
	}()
}

func closeConnection(conn writer) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(clients, conn)
}

// RunHub owns the client map; every write happens on this goroutine.
func RunHub(ctx context.Context) {
	remote := make(chan BroadcastMessage, 64)
	startValkeySubscriber(remote)

	for {
		select {
		case <-ctx.Done():
			for conn := range clients {
				closeConnection(conn)
			}
			return

		case r := <-register:
			handleRegister(r)

		case conn := <-unregister:
			handleUnregister(conn)

		case message := <-remote:
			broadcastToLocal(message)

		case message := <-Broadcast:
			broadcastToLocal(message)
			if vkClient != nil {
				publishToValkey(message)
			}
		}
	}
}

// RegisterRoutes mounts /ws on a router that already ran the auth middleware,
// so the tenant is read from Locals. status answers FETCH_STATUS requests.
func RegisterRoutes(app fiber.Router, status func(tenantID string) sessionDomain.State) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		tenantID, _ := conn.Locals(middleware.LocalTenantID).(string)
		defer func() {
			unregister <- conn
			_ = conn.Close()
		}()

		register <- registration{conn: conn, tenantID: tenantID}
		PublishSessionStatus(tenantID, "", status(tenantID))

		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("[WS] read error: %v", err)
				}
				return
			}

			if messageType != websocket.TextMessage {
				logrus.Debugf("[WS] unsupported message type: %d", messageType)
				continue
			}

			var request BroadcastMessage
			if err := json.Unmarshal(message, &request); err != nil {
				logrus.Debugf("[WS] unmarshal error: %v", err)
				return
			}
			if request.Code == CodeFetchStatus {
				PublishSessionStatus(tenantID, "", status(tenantID))
			}
		}
	}))
}
