package channel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client plays the remote session against a Server: it opens channels,
// sends data and reads the frames the plugins send back.
type Client struct {
	conn         net.Conn
	maxFrameSize int

	writeMu sync.Mutex
	readMu  sync.Mutex

	framesSent atomic.Uint64
}

// Dial connects to the channel server listening on socketPath.
func Dial(ctx context.Context, socketPath string, maxFrameSize int) (*Client, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to channel socket %s: %w", socketPath, err)
	}
	return &Client{conn: conn, maxFrameSize: maxFrameSize}, nil
}

// Open asks the server to connect the named channel.
func (c *Client) Open(ctx context.Context, channel string) error {
	return c.write(ctx, Frame{Channel: channel, Kind: KindConnect})
}

func (c *Client) Send(ctx context.Context, channel string, data []byte) error {
	return c.write(ctx, Frame{Channel: channel, Kind: KindData, Data: data})
}

// Terminate closes the named channel; its plugin gets OnTerminate.
func (c *Client) Terminate(ctx context.Context, channel string) error {
	return c.write(ctx, Frame{Channel: channel, Kind: KindTerminate})
}

// Recv blocks for the next frame from the server or until ctx is done.
func (c *Client) Recv(ctx context.Context) (Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	frame, err := ReadFrame(c.conn, c.maxFrameSize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Frame{}, ctxErr
		}
		return Frame{}, err
	}
	return frame, nil
}

// Sender returns a Sender bound to one channel of this client.
func (c *Client) Sender(channel string) Sender {
	return senderFunc(func(ctx context.Context, data []byte) error {
		return c.Send(ctx, channel, data)
	})
}

func (c *Client) FramesSent() uint64 {
	return c.framesSent.Load()
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) write(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := WriteFrame(c.conn, f, c.maxFrameSize); err != nil {
		return err
	}
	c.framesSent.Add(1)
	return nil
}

type senderFunc func(ctx context.Context, data []byte) error

func (f senderFunc) Send(ctx context.Context, data []byte) error {
	return f(ctx, data)
}
