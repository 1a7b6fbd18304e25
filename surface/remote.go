// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/render"
)

// RemoteSink sends frames to a RemoteDisplay over a WebSocket.
//
// Frames travel as binary messages in the quad wire format. Returned
// resources come back as JSON text messages.
type RemoteSink struct {
	conn *websocket.Conn
	done chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	handler func([]quad.ReturnedResource)
	err     error
}

// DialRemoteSink connects to the display at url.
func DialRemoteSink(url string) (*RemoteSink, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("surface: dial %s: %w", url, err)
	}
	s := &RemoteSink{conn: conn, done: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

func (s *RemoteSink) readLoop() {
	defer close(s.done)
	for {
		typ, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				cc.Logger().Debug("surface: remote sink read ended", "err", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		var returns []quad.ReturnedResource
		if err := json.Unmarshal(msg, &returns); err != nil {
			cc.Logger().Warn("surface: bad returned resources message", "err", err)
			continue
		}
		s.mu.Lock()
		fn := s.handler
		s.mu.Unlock()
		if fn != nil {
			fn(returns)
		}
	}
}

// SubmitFrame implements FrameSink.
func (s *RemoteSink) SubmitFrame(frame *quad.CompositorFrame) error {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("surface: remote display gone: %w", err)
	}
	data, err := quad.MarshalFrame(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// SetReturnedResourcesHandler implements FrameSink.
func (s *RemoteSink) SetReturnedResourcesHandler(fn func([]quad.ReturnedResource)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// Close sends a close message and waits for the read loop to end.
func (s *RemoteSink) Close() error {
	s.writeMu.Lock()
	err := s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.conn.Close()
	}
	<-s.done
	return s.conn.Close()
}

// RemoteDisplay is an http.Handler that accepts RemoteSink connections,
// draws the frames it receives and returns their resources.
type RemoteDisplay struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	frames  int
	last    *image.RGBA
	onFrame func(*quad.CompositorFrame)
}

// NewRemoteDisplay returns a display. onFrame, if not nil, is called for
// every decoded frame.
func NewRemoteDisplay(onFrame func(*quad.CompositorFrame)) *RemoteDisplay {
	return &RemoteDisplay{onFrame: onFrame}
}

// ServeHTTP implements http.Handler.
func (d *RemoteDisplay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cc.Logger().Warn("surface: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	renderer := render.NewSoftwareRenderer(nil)
	var target *render.PixmapTarget
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		frame, err := quad.UnmarshalFrame(msg)
		if err != nil {
			cc.Logger().Warn("surface: dropping undecodable frame", "err", err)
			continue
		}
		size := frame.Metadata.ViewportSize
		if size.IsEmpty() {
			size = frame.RootPass().OutputRect.Size()
		}
		if target == nil {
			target = render.NewPixmapTarget(size.Width, size.Height)
		} else {
			target.Resize(size.Width, size.Height)
		}
		if err := renderer.DrawFrame(frame, target); err != nil {
			cc.Logger().Warn("surface: remote draw failed", "err", err)
		}
		d.mu.Lock()
		d.frames++
		d.last = target.Snapshot(target.Image().Bounds())
		fn := d.onFrame
		d.mu.Unlock()
		if fn != nil {
			fn(frame)
		}

		returns := frameResources(frame)
		if len(returns) == 0 {
			continue
		}
		data, err := json.Marshal(returns)
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// FrameCount returns the number of frames drawn.
func (d *RemoteDisplay) FrameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Image returns the pixels of the last frame drawn.
func (d *RemoteDisplay) Image() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

var _ FrameSink = (*RemoteSink)(nil)
