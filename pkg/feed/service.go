// Package feed consumes the reading stream served by telemetry_api.
package feed

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
	"github.com/gorilla/websocket"
)

// Readings are expected every ~10s per node; silence beyond this drops the connection.
const readDeadline = 60 * time.Second

type Listener struct {
	Host           string
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

func NewListener(host string) *Listener {
	return &Listener{
		Host:           host,
		MaxRetries:     10,
		BaseRetryDelay: 2 * time.Second,
		MaxRetryDelay:  60 * time.Second,
	}
}

// Listen manages the websocket connection and calls handle for each reading
// until ctx is cancelled or the retries are exhausted.
func (l *Listener) Listen(ctx context.Context, handle func(reading types.Reading)) {
	u := url.URL{Scheme: "ws", Host: l.Host, Path: "/ws"}
	retryCount := 0

	for {
		if ctx.Err() != nil {
			log.Println("Interrupt received, shutting down...")
			return
		}

		if retryCount > 0 {
			// Exponential backoff
			retryDelay := time.Duration(1<<(retryCount-1)) * l.BaseRetryDelay
			if retryDelay > l.MaxRetryDelay {
				retryDelay = l.MaxRetryDelay
			}
			log.Printf("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, l.MaxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				log.Println("Interrupt received during retry wait, shutting down...")
				return
			}
		}

		log.Printf("Connecting to %s", u.String())

		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			log.Printf("Connection failed: %v", err)
			retryCount++
			if retryCount >= l.MaxRetries {
				log.Printf("Max retries (%d) reached. Giving up.", l.MaxRetries)
				return
			}
			continue
		}

		log.Println("Connected! Accepting sensor readings.")
		retryCount = 0

		connectionBroken := handleConnection(ctx, c, handle)
		c.Close()

		if !connectionBroken {
			return
		}
		log.Println("Connection lost, will retry...")
		retryCount = 1
	}
}

func handleConnection(ctx context.Context, c *websocket.Conn, handle func(types.Reading)) bool {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(readDeadline))

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				} else {
					log.Printf("Connection closed: %v", err)
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(readDeadline))

			if messageType != websocket.TextMessage {
				log.Printf("Received unexpected message type: %d", messageType)
				continue
			}
			if reading := types.ReadingFromJsonBytes(message); reading != nil {
				handle(*reading)
			} else {
				log.Printf("Failed to parse reading: %s", string(message))
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		log.Println("Interrupt received, closing connection...")
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("Error sending close message:", err)
		}

		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return false
	}
}
