package client

import (
	"context"
	"net/url"

	"github.com/gorilla/websocket"
)

// Conn is the subset of a websocket connection the manager needs. Satisfied
// by *gorilla/websocket.Conn; tests substitute a fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport connection to the given URL.
type Dialer func(ctx context.Context, rawURL string) (Conn, error)

func defaultDialer(ctx context.Context, rawURL string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// handshakeURL appends the identity query parameters the server requires.
func handshakeURL(serverURL, userID, userName, userColor string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("userId", userID)
	q.Set("userName", userName)
	q.Set("userColor", userColor)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
