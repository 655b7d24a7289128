// Package api serves a workspace over HTTP: JSON snapshots, window and
// desktop actions, and a websocket stream of workspace events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/display"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/vdesktop"
	"github.com/bryanchriswhite/winman/internal/window"
	"github.com/bryanchriswhite/winman/internal/workspace"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	ws        *workspace.Workspace
	configMgr *config.Manager
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	http     *http.Server
	shutdown bool
}

// NewServer creates a new API server. configMgr may be nil.
func NewServer(ws *workspace.Workspace, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		ws:        ws,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, any origin
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Windows
	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/focused", s.handleGetFocused).Methods("GET")
	api.HandleFunc("/windows/{handle}", s.handleGetWindow).Methods("GET")
	api.HandleFunc("/windows/{handle}/position", s.handleSetPosition).Methods("POST")
	api.HandleFunc("/windows/{handle}/state", s.handleSetState).Methods("POST")
	api.HandleFunc("/windows/{handle}/topmost", s.handleSetTopmost).Methods("POST")
	api.HandleFunc("/windows/{handle}/focus", s.handleFocus).Methods("POST")
	api.HandleFunc("/windows/{handle}/close", s.handleClose).Methods("POST")

	// Displays and desktops
	api.HandleFunc("/displays", s.handleGetDisplays).Methods("GET")
	api.HandleFunc("/desktops", s.handleGetDesktops).Methods("GET")
	api.HandleFunc("/desktops/{index}/switch", s.handleSwitchDesktop).Methods("POST")

	api.HandleFunc("/cursor", s.handleGetCursor).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves the API until Shutdown is called. It returns nil right away
// if Shutdown already ran.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.http = srv
	s.mu.Unlock()

	logger.WithComponent("api").Info().Str("addr", addr).Msgf("Starting server on http://localhost%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start, and keeps a later Start from
// serving.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Response write failed")
	}
}

func writeStatus(w http.ResponseWriter) {
	writeJSON(w, map[string]string{"status": "success"})
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workspace.ErrNotOpen), errors.Is(err, workspace.ErrDisposed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, window.ErrInvalidWindow), errors.Is(err, display.ErrInvalidDisplay):
		status = http.StatusGone
	case errors.Is(err, window.ErrInvalidOperation):
		status = http.StatusConflict
	case errors.Is(err, vdesktop.ErrNotSupported):
		status = http.StatusNotImplemented
	}
	http.Error(w, err.Error(), status)
}

// HTTP Handlers

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ws.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]*workspace.WindowInfo, 0, len(snap))
	for _, win := range snap {
		out = append(out, workspace.DescribeWindow(win))
	}
	writeJSON(w, out)
}

func (s *Server) handleGetFocused(w http.ResponseWriter, r *http.Request) {
	win, err := s.ws.FocusedWindow()
	if err != nil {
		writeError(w, err)
		return
	}
	if win == nil {
		http.Error(w, "No window focused", http.StatusNotFound)
		return
	}
	writeJSON(w, workspace.DescribeWindow(win))
}

// lookupWindow resolves the {handle} route variable. It writes the error
// response itself and returns nil on failure.
func (s *Server) lookupWindow(w http.ResponseWriter, r *http.Request) *window.Window {
	raw := mux.Vars(r)["handle"]
	h, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid window handle %q", raw), http.StatusBadRequest)
		return nil
	}
	win, err := s.ws.FindWindow(native.Handle(h))
	if err != nil {
		writeError(w, err)
		return nil
	}
	if win == nil {
		http.Error(w, "Window not found", http.StatusNotFound)
		return nil
	}
	return win
}

func (s *Server) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	win := s.lookupWindow(w, r)
	if win == nil {
		return
	}
	writeJSON(w, workspace.DescribeWindow(win))
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	win := s.lookupWindow(w, r)
	if win == nil {
		return
	}
	var pos geom.Rect
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := win.SetPosition(pos); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, workspace.DescribeWindow(win))
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	win := s.lookupWindow(w, r)
	if win == nil {
		return
	}
	var req struct {
		State window.State `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := win.SetState(req.State); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, workspace.DescribeWindow(win))
}

func (s *Server) handleSetTopmost(w http.ResponseWriter, r *http.Request) {
	win := s.lookupWindow(w, r)
	if win == nil {
		return
	}
	var req struct {
		Topmost bool `json:"topmost"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := win.SetTopmost(req.Topmost); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, workspace.DescribeWindow(win))
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	win := s.lookupWindow(w, r)
	if win == nil {
		return
	}
	writeJSON(w, map[string]bool{"focused": win.RequestFocus()})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	win := s.lookupWindow(w, r)
	if win == nil {
		return
	}
	if err := win.Close(); err != nil {
		writeError(w, err)
		return
	}
	writeStatus(w)
}

func (s *Server) handleGetDisplays(w http.ResponseWriter, r *http.Request) {
	dm, err := s.ws.DisplayManager()
	if err != nil {
		writeError(w, err)
		return
	}
	primary := dm.PrimaryDisplay()
	displays := dm.Displays()
	out := make([]*workspace.DisplayInfo, 0, len(displays))
	for _, d := range displays {
		out = append(out, workspace.DescribeDisplay(d, primary))
	}
	writeJSON(w, out)
}

func (s *Server) handleGetDesktops(w http.ResponseWriter, r *http.Request) {
	vdm, err := s.ws.VirtualDesktopManager()
	if err != nil {
		writeError(w, err)
		return
	}
	desktops := vdm.Desktops()
	out := make([]*workspace.DesktopInfo, 0, len(desktops))
	for _, d := range desktops {
		out = append(out, workspace.DescribeDesktop(d))
	}
	writeJSON(w, map[string]interface{}{
		"virtual_desktops": vdm.CanManageVirtualDesktops(),
		"desktops":         out,
	})
}

func (s *Server) handleSwitchDesktop(w http.ResponseWriter, r *http.Request) {
	vdm, err := s.ws.VirtualDesktopManager()
	if err != nil {
		writeError(w, err)
		return
	}
	raw := mux.Vars(r)["index"]
	index, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid desktop index %q", raw), http.StatusBadRequest)
		return
	}
	desktops := vdm.Desktops()
	if index < 0 || index >= len(desktops) {
		http.Error(w, "Desktop not found", http.StatusNotFound)
		return
	}
	if err := desktops[index].SwitchTo(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, workspace.DescribeDesktop(desktops[index]))
}

func (s *Server) handleGetCursor(w http.ResponseWriter, r *http.Request) {
	pt, err := s.ws.CursorLocation()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, pt)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "No configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, s.configMgr.Get())
}

// handleEvents streams the workspace event feed as JSON text messages until
// the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	updates := s.ws.Subscribe()
	defer s.ws.Unsubscribe(updates)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reading detects the client closing; the feed channel is closed in
	// response, which ends the write loop.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.ws.Unsubscribe(updates)
				return
			}
		}
	}()

	for ev := range updates {
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"open":    s.ws.IsOpen(),
	})
}
