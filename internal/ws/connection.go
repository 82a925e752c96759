package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is a single WebSocket session with its metadata and a write
// mutex serializing outbound frames. It satisfies hub.Sink via Send, so the
// broadcast hub can deliver to it directly.
type Connection struct {
	ID        string    // session ID (UUID)
	Conn      net.Conn  // underlying TCP connection
	Fd        int       // file descriptor for poller lookups
	CreatedAt time.Time // when the connection was established

	lastActive   int64         // unix nanos of last client activity, atomic
	writeTimeout time.Duration // per-write deadline, 0 disables
	writeMu      sync.Mutex    // serializes writes to this connection
	processing   int32         // atomic flag: 0 = idle, 1 = being read
}

// Touch records client activity. Read workers and the pong path call it
// concurrently with the heartbeat's LastActive reads.
func (c *Connection) Touch() {
	atomic.StoreInt64(&c.lastActive, time.Now().UnixNano())
}

// LastActive returns the time of the last observed client activity.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActive))
}

// Send writes a WebSocket text frame to this connection, applying the
// configured write deadline. Concurrent callers are serialized by the write
// mutex so frame bytes never interleave.
func (c *Connection) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame (opcode 0x9). Browsers answer
// it automatically with a pong.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnTable is a thread-safe registry mapping session IDs and file
// descriptors to their Connection, with O(1) lookups by both.
type ConnTable struct {
	mu   sync.RWMutex
	byID map[string]*Connection
	byFd map[int]*Connection
}

// NewConnTable creates an empty ConnTable.
func NewConnTable() *ConnTable {
	return &ConnTable{
		byID: make(map[string]*Connection),
		byFd: make(map[int]*Connection),
	}
}

// Add registers a connection in both lookup maps.
func (t *ConnTable) Add(conn *Connection) {
	t.mu.Lock()
	t.byID[conn.ID] = conn
	t.byFd[conn.Fd] = conn
	t.mu.Unlock()
}

// Remove removes a connection by session ID and closes the underlying
// network connection. Returns false if it was already gone, so racing
// cleanup paths (read error vs heartbeat) do not double-clean.
func (t *ConnTable) Remove(id string) bool {
	t.mu.Lock()
	conn, ok := t.byID[id]
	if ok {
		delete(t.byID, id)
		delete(t.byFd, conn.Fd)
	}
	t.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given session ID, or nil.
func (t *ConnTable) Get(id string) *Connection {
	t.mu.RLock()
	conn := t.byID[id]
	t.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil.
func (t *ConnTable) GetByFd(fd int) *Connection {
	t.mu.RLock()
	conn := t.byFd[fd]
	t.mu.RUnlock()
	return conn
}

// GetByConn resolves a net.Conn back to its Connection via its fd.
func (t *ConnTable) GetByConn(c net.Conn) *Connection {
	return t.GetByFd(socketFD(c))
}

// Count returns the current number of active connections.
func (t *ConnTable) Count() int {
	t.mu.RLock()
	n := len(t.byID)
	t.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections, safe to iterate
// without holding the lock.
func (t *ConnTable) All() []*Connection {
	t.mu.RLock()
	conns := make([]*Connection, 0, len(t.byID))
	for _, conn := range t.byID {
		conns = append(conns, conn)
	}
	t.mu.RUnlock()
	return conns
}
