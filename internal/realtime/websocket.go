package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single frame write.
const writeWait = 10 * time.Second

// WebsocketDialer dials the backend with gorilla/websocket.
type WebsocketDialer struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Header is sent with the upgrade request.
	Header http.Header
}

// Dial opens a websocket connection.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Socket, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &wsSocket{conn: conn}, nil
}

// wsSocket serializes writes; gorilla allows one concurrent reader and one
// concurrent writer.
type wsSocket struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	return s.conn.Close()
}
