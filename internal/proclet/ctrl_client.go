// Package proclet implements the proclet controller RPC client and the
// restoration manager that decides, for a given proclet id, whether a
// proclet is already resident locally or must be migrated back before a
// distributed backtrace can dereference it (spec.md §4.8).
package proclet

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/USC-NSL/DDB/internal/ids"
	"github.com/USC-NSL/DDB/internal/metrics"
)

// Command selects the proclet controller RPC verb. The controller speaks
// a bespoke binary frame, not any RPC framework in the pack, so the
// client hand-rolls the header the original implementation parses by hand
// (16 bytes: cmd, len, token, all big-endian).
type Command uint32

const (
	CmdQuery Command = iota + 1
	CmdRestore
)

const headerSize = 16 // cmd:u32 + len:u32 + token:u64

// Client is a single persistent connection to a proclet controller,
// multiplexing concurrent RPCs by token over one TCP stream.
type Client struct {
	conn net.Conn
	gen  *ids.Counter

	mu      sync.Mutex
	pending map[uint64]chan []byte

	writeMu sync.Mutex

	metrics *metrics.Metrics
}

// BindMetrics attaches the Prometheus instrumentation. A nil
// *metrics.Metrics (the default) silently disables recording.
func (c *Client) BindMetrics(m *metrics.Metrics) { c.metrics = m }

// Dial connects to a proclet controller at addr and starts its reader
// goroutine.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("proclet: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:    conn,
		gen:     ids.NewCounter(),
		pending: make(map[uint64]chan []byte),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the underlying connection; any pending calls receive an
// error.
func (c *Client) Close() error { return c.conn.Close() }

// call issues cmd with payload and blocks for the matching-token reply.
func (c *Client) call(cmd Command, payload []byte) ([]byte, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.ProcletRPCDuration.Record(context.Background(), time.Since(start).Seconds())
		}
	}()

	token := c.gen.Next()
	ch := make(chan []byte, 1)

	c.mu.Lock()
	c.pending[token] = ch
	c.mu.Unlock()

	if err := c.writeFrame(cmd, token, payload); err != nil {
		c.mu.Lock()
		delete(c.pending, token)
		c.mu.Unlock()
		return nil, err
	}

	resp, ok := <-ch
	if !ok {
		return nil, fmt.Errorf("proclet: connection closed awaiting token %d", token)
	}
	return resp, nil
}

func (c *Client) writeFrame(cmd Command, token uint64, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:4], uint32(cmd))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	binary.BigEndian.PutUint64(header[8:16], token)

	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := c.conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop() {
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(c.conn, header); err != nil {
			c.closePending()
			return
		}
		n := binary.BigEndian.Uint32(header[4:8])
		token := binary.BigEndian.Uint64(header[8:16])

		payload := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(c.conn, payload); err != nil {
				c.closePending()
				return
			}
		}

		c.mu.Lock()
		ch, ok := c.pending[token]
		if ok {
			delete(c.pending, token)
		}
		c.mu.Unlock()
		if ok {
			ch <- payload
		}
	}
}

func (c *Client) closePending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for token, ch := range c.pending {
		close(ch)
		delete(c.pending, token)
	}
}

// Query asks the controller which node currently hosts the proclet at
// procletID, returning that node's IPv4 address in dotted form. The reply
// payload is proclet_id:u64 followed by the node ip:u32, big-endian.
func (c *Client) Query(procletID uint64) (string, error) {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, procletID)
	resp, err := c.call(CmdQuery, payload)
	if err != nil {
		return "", err
	}
	if len(resp) < 12 {
		return "", fmt.Errorf("proclet: short query reply (%d bytes)", len(resp))
	}
	ip := binary.BigEndian.Uint32(resp[8:12])
	return net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip)).String(), nil
}

// Restore asks the controller to migrate the proclet at procletID back to
// node, blocking until the controller acknowledges the migration.
func (c *Client) Restore(procletID uint64, node string) error {
	payload := make([]byte, 8+len(node))
	binary.BigEndian.PutUint64(payload[:8], procletID)
	copy(payload[8:], node)
	_, err := c.call(CmdRestore, payload)
	return err
}
