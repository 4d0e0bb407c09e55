// Package client implements a minimal Go client for the vex binary TCP
// protocol. A Client serializes requests over one connection; open several
// clients for concurrent load.
package client

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
)

// Opcodes, mirrored from the server.
const (
	opSearch byte = 0x01
	opInsert byte = 0x02
)

// ErrDimensionMismatch is returned when the server rejects a vector shape.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// ErrRemote is returned for any other server-side failure.
var ErrRemote = errors.New("remote failure")

// Client is a single-connection protocol client.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// Dial connects to a vex server.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Search returns the ids of the k nearest neighbors of query.
func (c *Client) Search(query []float32, k, efSearch uint32) ([]uint32, error) {
	body := make([]byte, 13+4*len(query))
	body[0] = opSearch
	binary.LittleEndian.PutUint32(body[1:], k)
	binary.LittleEndian.PutUint32(body[5:], efSearch)
	binary.LittleEndian.PutUint32(body[9:], uint32(len(query)))
	for i, f := range query {
		binary.LittleEndian.PutUint32(body[13+4*i:], math.Float32bits(f))
	}

	resp, err := c.roundTrip(body)
	if err != nil {
		return nil, err
	}
	if len(resp) < 8 {
		if len(resp) >= 4 {
			return nil, codeToError(int32(binary.LittleEndian.Uint32(resp)))
		}
		return nil, fmt.Errorf("%w: short response", ErrRemote)
	}
	if code := int32(binary.LittleEndian.Uint32(resp[0:4])); code != 0 {
		return nil, codeToError(code)
	}

	n := int(binary.LittleEndian.Uint32(resp[4:8]))
	if len(resp) != 8+4*n {
		return nil, fmt.Errorf("%w: truncated id list", ErrRemote)
	}
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(resp[8+4*i:])
	}
	return ids, nil
}

// Insert sends (id, vec) to the streaming write path.
func (c *Client) Insert(id uint32, vec []float32) error {
	body := make([]byte, 9+4*len(vec))
	body[0] = opInsert
	binary.LittleEndian.PutUint32(body[1:], id)
	binary.LittleEndian.PutUint32(body[5:], uint32(len(vec)))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(body[9+4*i:], math.Float32bits(f))
	}

	resp, err := c.roundTrip(body)
	if err != nil {
		return err
	}
	if len(resp) < 4 {
		return fmt.Errorf("%w: short response", ErrRemote)
	}
	return codeToError(int32(binary.LittleEndian.Uint32(resp)))
}

func codeToError(code int32) error {
	switch code {
	case 0:
		return nil
	case -1:
		return ErrDimensionMismatch
	default:
		return fmt.Errorf("%w: code %d", ErrRemote, code)
	}
}

func (c *Client) roundTrip(body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := c.w.Write(lenBuf[:]); err != nil {
		return nil, err
	}
	if _, err := c.w.Write(body); err != nil {
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])
	resp := make([]byte, size)
	if _, err := io.ReadFull(c.r, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
