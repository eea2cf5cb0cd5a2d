package utils

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	websocket "github.com/gofiber/websocket/v2"
)

// ConsoleLogManager tees process log output to websocket clients
type ConsoleLogManager struct {
	clients       sync.Map // *websocket.Conn -> struct{}
	buffer        *logBuffer
	captureActive bool
	mu            sync.Mutex
}

// LogEntry is one line sent to websocket clients.
type LogEntry struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

type logBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	maxSize int
}

func newLogBuffer(maxSize int) *logBuffer {
	return &logBuffer{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

func (lb *logBuffer) Add(entry LogEntry) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries = append(lb.entries, entry)
	if len(lb.entries) > lb.maxSize {
		lb.entries = lb.entries[1:]
	}
}

func (lb *logBuffer) GetAll() []LogEntry {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	result := make([]LogEntry, len(lb.entries))
	copy(result, lb.entries)
	return result
}

var consoleLogManager = &ConsoleLogManager{
	buffer: newLogBuffer(1000), // Keep last 1000 log entries
}

// logWriter wraps an io.Writer to broadcast logs
type logWriter struct {
	manager *ConsoleLogManager
}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		entry := LogEntry{Type: logLevelOf(line), Message: line, Time: time.Now()}
		lw.manager.buffer.Add(entry)
		lw.manager.broadcast(entry)
	}
	return len(p), nil
}

// logLevelOf extracts the level from a fiber log line such as
// "2025/01/02 15:04:05.000000 logger.go:12: [Warn] message".
func logLevelOf(line string) string {
	for _, level := range []string{"Trace", "Debug", "Info", "Warn", "Error", "Fatal", "Panic"} {
		if strings.Contains(line, "["+level+"]") {
			return strings.ToLower(level)
		}
	}
	return "info"
}

// InitializeConsoleLogger sets up console log capture and streaming
func InitializeConsoleLogger() {
	consoleLogManager.mu.Lock()
	defer consoleLogManager.mu.Unlock()
	if consoleLogManager.captureActive {
		return
	}

	writer := &logWriter{manager: consoleLogManager}
	log.SetOutput(io.MultiWriter(os.Stdout, writer))
	consoleLogManager.captureActive = true

	log.Debug("Console log streaming initialized")
}

// HandleConsoleLogsWebSocket streams buffered and live log lines to c until
// the client goes away
func HandleConsoleLogsWebSocket(c *websocket.Conn) {
	registerConsoleClient(c)
	defer unregisterConsoleClient(c)

	for _, entry := range consoleLogManager.buffer.GetAll() {
		payload, _ := json.Marshal(entry)
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	// Keep connection alive and wait for close
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debugf("WebSocket closed unexpectedly: %v", err)
			}
			break
		}
	}
}

// broadcast sends a log entry to all connected clients
func (clm *ConsoleLogManager) broadcast(entry LogEntry) {
	var conns []*websocket.Conn
	clm.clients.Range(func(key, value interface{}) bool {
		conns = append(conns, key.(*websocket.Conn))
		return true
	})
	if len(conns) == 0 {
		return
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			unregisterConsoleClient(conn)
		}
	}
}

func registerConsoleClient(conn *websocket.Conn) {
	consoleLogManager.clients.Store(conn, struct{}{})
}

func unregisterConsoleClient(conn *websocket.Conn) {
	if _, loaded := consoleLogManager.clients.LoadAndDelete(conn); loaded {
		conn.Close()
	}
}
