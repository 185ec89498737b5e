package reader

import (
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	appconfig "bookfeed/config"
)

// Conn is the part of a WebSocket connection the supervisor drives.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens connections to endpoint URLs.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	dialer websocket.Dialer
	header http.Header
}

// NewDialer returns a gorilla/websocket dialer honouring the handshake
// timeout, optional source address and User-Agent.
func NewDialer(cfg appconfig.ReaderConfig) Dialer {
	d := &wsDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		header: http.Header{},
	}
	if cfg.LocalIP != "" {
		if ip := net.ParseIP(cfg.LocalIP); ip != nil {
			d.dialer.NetDialContext = (&net.Dialer{
				LocalAddr: &net.TCPAddr{IP: ip},
				Timeout:   cfg.HandshakeTimeout,
			}).DialContext
		}
	}
	if cfg.UserAgent != "" {
		d.header.Set("User-Agent", cfg.UserAgent)
	}
	return d
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (http status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// inflate decompresses a raw DEFLATE payload, as sent by venues that
// compress binary frames.
func inflate(msg []byte) ([]byte, error) {
	reader := flate.NewReader(bytes.NewReader(msg))
	defer reader.Close()
	return io.ReadAll(reader)
}
