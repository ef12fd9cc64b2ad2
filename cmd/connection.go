// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/linkage/pkg/config"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

var (
	// Backend connection flags
	wsURL         string
	wsNoSSLVerify bool
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// addBackendFlags registers the flags used to reach the backend
func addBackendFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&wsURL, "url", "u", "", "Backend WebSocket base URL (default from backend.listen)")
	cmd.Flags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// through a TLS-terminating proxy)")
}

// FrameConn carries 8-byte frames as binary WebSocket messages
type FrameConn struct {
	conn   *websocket.Conn
	wmu    sync.Mutex
	closed bool
}

// ReadFrame returns the next binary message as a frame. Messages of the
// wrong size are skipped.
func (c *FrameConn) ReadFrame() (messaging.Frame, error) {
	if c.closed {
		return messaging.Frame{}, ErrConnectionClosed
	}
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closed = true
			return messaging.Frame{}, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		f, err := messaging.FrameFromBytes(data)
		if err != nil {
			continue
		}
		return f, nil
	}
}

// WriteFrame sends f as one binary message
func (c *FrameConn) WriteFrame(f messaging.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, f.Bytes())
}

// Close closes the connection
func (c *FrameConn) Close() error {
	return c.conn.Close()
}

// backendURL joins the base URL (flag, or derived from the backend listen
// address) with an endpoint path.
func backendURL(cfg *config.Config, path string) (string, error) {
	base := wsURL
	if base == "" {
		addr, err := loopbackAddr(cfg.Backend.Listen)
		if err != nil {
			return "", err
		}
		base = "ws://" + addr
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %v", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

// OpenBackendConnection opens a WebSocket endpoint of the backend. The
// backend speaks plain ws://; wss:// is for a TLS proxy in front of it.
func OpenBackendConnection(cfg *config.Config, path string) (*FrameConn, string, error) {
	target, err := backendURL(cfg, path)
	if err != nil {
		return nil, "", err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if strings.HasPrefix(target, "wss://") {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: wsNoSSLVerify,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, "", fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, "", fmt.Errorf("WebSocket connection failed: %v", err)
	}
	return &FrameConn{conn: conn}, target, nil
}
