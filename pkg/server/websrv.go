package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystal-mush/profstats/pkg/command"
)

// Version is reported by /health.
const Version = "0.3.0"

// WebServer provides HTTP/WebSocket transport alongside the TCP server.
type WebServer struct {
	conf       *Conf
	dispatcher *command.Dispatcher
	accounts   Accounts
	metrics    *Metrics
	conns      *ConnManager
	tracked    map[string]*ConnManager
	auth       *AuthService
	rl         *rateLimiter
	upgrader   websocket.Upgrader
	mux        *http.ServeMux
	handler    http.Handler
	httpSrv    *http.Server
	startTime  time.Time
}

// NewWebServer creates a web server. m may be nil, which disables /metrics.
func NewWebServer(conf *Conf, d *command.Dispatcher, accounts Accounts, m *Metrics) *WebServer {
	ws := &WebServer{
		conf:       conf,
		dispatcher: d,
		accounts:   accounts,
		metrics:    m,
		conns:      NewConnManager(),
		tracked:    make(map[string]*ConnManager),
		auth:       NewAuthService(accounts, conf.JWTSecret, conf.JWTExpiry),
		rl:         newRateLimiter(conf.WebRateLimit),
		mux:        http.NewServeMux(),
		startTime:  time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(conf.WebCORSOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range conf.WebCORSOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}
	ws.tracked[TransportWebSocket] = ws.conns
	ws.registerRoutes()
	return ws
}

// TrackSessions adds another transport's connections to the /health report.
// Call it before Start.
func (ws *WebServer) TrackSessions(transport string, cm *ConnManager) {
	ws.tracked[transport] = cm
}

// Auth returns the auth service.
func (ws *WebServer) Auth() *AuthService { return ws.auth }

// Handler returns the root handler with middleware applied.
func (ws *WebServer) Handler() http.Handler { return ws.handler }

func (ws *WebServer) registerRoutes() {
	ws.mux.HandleFunc("GET /ws", ws.handleWebSocket)
	ws.mux.HandleFunc("POST /api/v1/auth/login", ws.handleAuthLogin)
	ws.mux.HandleFunc("POST /api/v1/auth/refresh", ws.handleAuthRefresh)
	ws.mux.Handle("POST /api/v1/command", authMiddleware(ws.auth, http.HandlerFunc(ws.handleCommand)))
	ws.mux.HandleFunc("GET /health", ws.handleHealth)
	if ws.metrics != nil {
		ws.mux.Handle("GET /metrics", ws.metrics.Handler())
	}

	// CORS -> rate limit -> routes
	handler := http.Handler(ws.mux)
	handler = rateLimitMiddleware(ws.rl, handler)
	handler = corsMiddleware(ws.conf.WebCORSOrigins, handler)
	ws.handler = handler
	ws.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", ws.conf.WebHost, ws.conf.WebPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Start listens until Stop is called.
func (ws *WebServer) Start() error {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			ws.rl.cleanup(10 * time.Minute)
		}
	}()

	log.Printf("Web server listening on %s (HTTP)", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server and its websocket clients.
func (ws *WebServer) Stop(ctx context.Context) error {
	ws.conns.CloseAll()
	return ws.httpSrv.Shutdown(ctx)
}

// --- WebSocket Handler ---

// WSMessage is the JSON message format for WebSocket communication.
type WSMessage struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Command string         `json:"command,omitempty"`
}

// wsConn holds the WebSocket connection and its write mutex.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (wc *wsConn) sendJSON(msg WSMessage) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	wc.conn.WriteJSON(msg)
}

// handleWebSocket upgrades the request and serves one client. A token in the
// query string or Authorization header logs the client in immediately.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *Claims
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r)
	}
	if token != "" {
		var err error
		claims, err = ws.auth.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	wc := &wsConn{conn: conn}
	d := &Descriptor{
		ID:        ws.conns.NextID(),
		Conn:      conn.NetConn(),
		State:     ConnLogin,
		Addr:      clientIP(r),
		ConnTime:  time.Now(),
		Retries:   ws.conf.MaxRetries,
		Transport: TransportWebSocket,
		grants:    ws.accounts,
		SendFunc: func(msg string) {
			wc.sendJSON(WSMessage{Type: "text", Text: msg})
		},
	}
	ws.conns.Add(d)

	if claims != nil {
		ws.loginWS(d, wc, claims.PlayerName)
	} else {
		wc.sendJSON(WSMessage{Type: "welcome", Text: `Connected. Send {"type":"login","command":"connect name password"} to authenticate.`})
	}

	go ws.wsReadLoop(r.Context(), d, wc)
}

func (ws *WebServer) loginWS(d *Descriptor, wc *wsConn, player string) {
	d.Login(player)
	if ws.metrics != nil {
		ws.metrics.SessionOpened(TransportWebSocket)
	}
	log.Printf("[ws:%d] %s connected from %s", d.ID, player, d.Addr)
	wc.sendJSON(WSMessage{Type: "login", Data: map[string]any{"player_name": player}})
}

func (ws *WebServer) wsReadLoop(reqCtx context.Context, d *Descriptor, wc *wsConn) {
	// The request context ends when the handler returns, so commands run
	// under their own context.
	ctx, cancel := context.WithCancel(context.WithoutCancel(reqCtx))
	defer func() {
		cancel()
		if d.Connected() && ws.metrics != nil {
			ws.metrics.SessionClosed(TransportWebSocket)
		}
		ws.conns.Remove(d)
		wc.conn.Close()
		log.Printf("[ws:%d] WebSocket closed from %s", d.ID, d.Addr)
	}()

	for {
		_, msgBytes, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws:%d] read error: %v", d.ID, err)
			}
			return
		}
		d.Touch()

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: "Invalid JSON message"})
			continue
		}

		switch msg.Type {
		case "command":
			if !d.Connected() {
				ws.handleWSLogin(d, wc, msg.Command)
				continue
			}
			d.CountCommand()
			ws.dispatcher.DispatchLine(ctx, d, msg.Command)
		case "login":
			ws.handleWSLogin(d, wc, msg.Command)
		default:
			wc.sendJSON(WSMessage{Type: "error", Text: fmt.Sprintf("Unknown message type: %s", msg.Type)})
		}
	}
}

func (ws *WebServer) handleWSLogin(d *Descriptor, wc *wsConn, input string) {
	if d.Connected() {
		wc.sendJSON(WSMessage{Type: "error", Text: "Already connected."})
		return
	}
	cmd, user, password := ParseConnect(input)
	if !strings.HasPrefix(cmd, "co") {
		wc.sendJSON(WSMessage{Type: "error", Text: "Use: connect <name> <password>"})
		return
	}
	if user == "" || !ws.accounts.Check(user, password) {
		log.Printf("[ws:%d] Failed login for %q from %s", d.ID, user, d.Addr)
		wc.sendJSON(WSMessage{Type: "error", Text: "Invalid credentials"})
		d.Retries--
		if d.Retries <= 0 {
			wc.sendJSON(WSMessage{Type: "error", Text: "Too many failed attempts. Disconnecting."})
			d.Close()
		}
		return
	}
	ws.loginWS(d, wc, user)
}

// --- REST command endpoint ---

// captureActor collects the response of a single dispatch.
type captureActor struct {
	name   string
	grants Grants
	mu     sync.Mutex
	msgs   []string
}

func (c *captureActor) Name() string { return c.name }
func (c *captureActor) Capabilities() command.Capabilities {
	return c.grants.Capabilities(c.name)
}
func (c *captureActor) Send(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}
func (c *captureActor) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.msgs, "\n")
}

func (ws *WebServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Command) == "" {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	actor := &captureActor{name: claims.PlayerName, grants: ws.accounts}
	if ws.metrics != nil {
		ws.metrics.SessionOpened(TransportHTTP)
		defer ws.metrics.SessionClosed(TransportHTTP)
	}
	ws.dispatcher.DispatchLine(r.Context(), actor, req.Command)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"text": actor.Text()})
}

// --- Auth HTTP Handlers ---

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := ws.auth.Login(req.Name, req.Password)
	if err != nil {
		log.Printf("web: failed login for %q from %s", req.Name, clientIP(r))
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	newToken, err := ws.auth.RefreshToken(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": newToken})
}

// --- Health Handler ---

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	sessions := make(map[string]SessionSummary, len(ws.tracked))
	for transport, cm := range ws.tracked {
		sessions[transport] = cm.Summary(now)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": now.Sub(ws.startTime).Seconds(),
		"commands":       ws.dispatcher.Registry().Len(),
		"ws_clients":     ws.conns.Count(),
		"sessions":       sessions,
	})
}
