// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/JadeCompass/internal/game"
	"github.com/Corphon/JadeCompass/internal/models"
	"github.com/Corphon/JadeCompass/internal/utils"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsSendBuffer   = 16
)

// WebSocket 升级器配置；来源检查交给 CORS 配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// StateMessage 推送给客户端的状态消息
type StateMessage struct {
	Type      string           `json:"type"`
	Data      models.GameState `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// WebSocketClient 表示一个订阅会话状态的连接
type WebSocketClient struct {
	conn      WebSocketConnection
	sessionID string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	lastPing  atomic.Int64 // unix nano
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, sessionID string) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接，可重复调用
func (client *WebSocketClient) Close() {
	client.closeOnce.Do(func() {
		close(client.done)
		client.conn.Close()
	})
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	select {
	case <-client.done:
		return true
	default:
		return false
	}
}

// UpdatePing 更新最后活跃时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// LastPing 最后活跃时间
func (client *WebSocketClient) LastPing() time.Time {
	return time.Unix(0, client.lastPing.Load())
}

// SendState 推送状态快照；队列满时丢弃旧的一条再写入
func (client *WebSocketClient) SendState(state models.GameState) {
	msg, err := json.Marshal(StateMessage{Type: "state", Data: state, Timestamp: time.Now()})
	if err != nil {
		utils.GetLogger().Error("marshal state message", map[string]interface{}{"error": err})
		return
	}

	for i := 0; i < 2; i++ {
		select {
		case <-client.done:
			return
		case client.send <- msg:
			return
		default:
			// 只关心最新状态
			select {
			case <-client.send:
			default:
			}
		}
	}
}

// writePump 发送队列中的消息并定期 ping
func (client *WebSocketClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case <-client.done:
			return

		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只处理 pong 与关闭；客户端发送的内容被忽略
func (client *WebSocketClient) readPump() {
	defer client.Close()

	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.GetLogger().Debug("websocket read error", map[string]interface{}{
					"session_id": client.sessionID,
					"error":      err,
				})
			}
			return
		}
		client.UpdatePing()
	}
}

// WebSocketManager 按会话管理状态推送连接
type WebSocketManager struct {
	mutex       sync.RWMutex
	connections map[string]map[*WebSocketClient]struct{} // sessionID -> clients
	metrics     *utils.MetricsCollector
	closed      bool
}

// NewWebSocketManager metrics 可为 nil
func NewWebSocketManager(metrics *utils.MetricsCollector) *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[string]map[*WebSocketClient]struct{}),
		metrics:     metrics,
	}
}

// Serve 升级连接并推送会话状态，直到连接断开
func (manager *WebSocketManager) Serve(c *gin.Context, session *game.Session) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warn("websocket upgrade failed", map[string]interface{}{
			"session_id": session.ID(),
			"error":      err,
		})
		return
	}

	client := newWebSocketClient(conn, session.ID())
	if !manager.registerClient(client) {
		client.Close()
		return
	}
	defer manager.unregisterClient(client)

	unsubscribe := session.Subscribe(client.SendState)
	defer unsubscribe()

	client.SendState(session.State())

	go client.writePump()
	client.readPump()
}

// registerClient 注册新客户端，管理器关闭后拒绝
func (manager *WebSocketManager) registerClient(client *WebSocketClient) bool {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.closed {
		return false
	}
	if manager.connections[client.sessionID] == nil {
		manager.connections[client.sessionID] = make(map[*WebSocketClient]struct{})
	}
	manager.connections[client.sessionID][client] = struct{}{}
	if manager.metrics != nil {
		manager.metrics.IncWSClients()
	}

	utils.GetLogger().Debug("websocket client connected", map[string]interface{}{
		"session_id": client.sessionID,
	})
	return true
}

// unregisterClient 注销并关闭客户端
func (manager *WebSocketManager) unregisterClient(client *WebSocketClient) {
	manager.mutex.Lock()
	if clients, ok := manager.connections[client.sessionID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if manager.metrics != nil {
				manager.metrics.DecWSClients()
			}
		}
		if len(clients) == 0 {
			delete(manager.connections, client.sessionID)
		}
	}
	manager.mutex.Unlock()

	client.Close()
}

// CloseSession 断开某个会话的全部连接
func (manager *WebSocketManager) CloseSession(sessionID string) {
	manager.mutex.RLock()
	clients := make([]*WebSocketClient, 0, len(manager.connections[sessionID]))
	for client := range manager.connections[sessionID] {
		clients = append(clients, client)
	}
	manager.mutex.RUnlock()

	for _, client := range clients {
		client.Close()
	}
}

// ClientCount 某个会话的连接数
func (manager *WebSocketManager) ClientCount(sessionID string) int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()
	return len(manager.connections[sessionID])
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	total := 0
	sessions := make(map[string]int, len(manager.connections))
	lastActivity := make(map[string]time.Time, len(manager.connections))
	for id, clients := range manager.connections {
		sessions[id] = len(clients)
		total += len(clients)
		for client := range clients {
			if ping := client.LastPing(); ping.After(lastActivity[id]) {
				lastActivity[id] = ping
			}
		}
	}
	return map[string]interface{}{
		"total_sessions":    len(manager.connections),
		"total_connections": total,
		"sessions":          sessions,
		"last_activity":     lastActivity,
	}
}

// Shutdown 关闭所有连接，之后不再接受新连接
func (manager *WebSocketManager) Shutdown() {
	manager.mutex.Lock()
	manager.closed = true
	var clients []*WebSocketClient
	for _, set := range manager.connections {
		for client := range set {
			clients = append(clients, client)
		}
	}
	manager.mutex.Unlock()

	for _, client := range clients {
		client.Close()
	}
	utils.GetLogger().Info("websocket manager stopped", map[string]interface{}{"closed": len(clients)})
}
