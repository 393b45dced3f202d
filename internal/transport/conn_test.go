package transport_test

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherelay/internal/domain"
	"cipherelay/internal/transport"
)

func TestTCPConn_SendAndReceive(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := transport.NewTCPConn(server, transport.Options{})
	defer conn.Close()

	require.NoError(t, conn.Send(domain.SystemEnvelope("welcome")))

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "SYSTEM||welcome\n", line)

	go func() { _, _ = client.Write([]byte("hello\r\n")) }()
	raw, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(raw))
}

func TestTCPConn_CloseFlushesQueuedFrames(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := transport.NewTCPConn(server, transport.Options{})
	require.NoError(t, conn.Send(domain.Envelope{Type: domain.EnvelopeAuthFail, Reason: "Invalid username or password"}))
	require.NoError(t, conn.Close())

	data, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Equal(t, "AUTH_FAIL||Invalid username or password\n", string(data))

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("conn not done after close")
	}
	assert.ErrorIs(t, conn.Send(domain.SystemEnvelope("late")), domain.ErrConnClosed)
}

func TestTCPConn_StalledPeerIsSlowConsumer(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	// Nobody reads from client, so the writer blocks on its first frame.
	conn := transport.NewTCPConn(server, transport.Options{QueueSize: 1})
	defer conn.Close()

	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = conn.Send(domain.SystemEnvelope("tick"))
	}
	assert.ErrorIs(t, err, domain.ErrSlowConsumer)
}

func TestTCPConn_ReceiveEOF(t *testing.T) {
	server, client := net.Pipe()
	conn := transport.NewTCPConn(server, transport.Options{})
	defer conn.Close()

	require.NoError(t, client.Close())
	_, err := conn.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWebSocketConn_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := transport.NewWebSocketConn(ws, transport.Options{})
		defer conn.Close()

		_ = conn.Send(domain.SystemEnvelope("hello"))
		raw, err := conn.Receive()
		if err != nil {
			return
		}
		received <- string(raw)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	_, raw, err := client.ReadMessage()
	require.NoError(t, err)
	env, err := transport.JSONCodec{}.DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.EnvelopeSystem, env.Type)
	assert.Equal(t, "hello", env.Reason)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"ciphertext":"x"}`)))
	select {
	case got := <-received:
		assert.Equal(t, `{"ciphertext":"x"}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}
}

func TestTCPConn_OversizedLineIsSkipped(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := transport.NewTCPConn(server, transport.Options{MaxFrameSize: 16})
	defer conn.Close()

	go func() {
		_, _ = client.Write([]byte(strings.Repeat("x", 10000) + "\n"))
		_, _ = client.Write([]byte(strings.Repeat("y", 16) + "\r\n"))
		_, _ = client.Write([]byte("tail"))
		_ = client.Close()
	}()

	_, err := conn.Receive()
	assert.ErrorIs(t, err, domain.ErrFrameTooLarge)

	raw, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("y", 16), string(raw), "a line at the limit is accepted")

	raw, err = conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, "tail", string(raw))

	_, err = conn.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWebSocketConn_OversizedMessageIsSkipped(t *testing.T) {
	upgrader := websocket.Upgrader{}
	results := make(chan error, 3)
	frames := make(chan string, 3)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := transport.NewWebSocketConn(ws, transport.Options{MaxFrameSize: 16})
		defer conn.Close()
		for i := 0; i < 3; i++ {
			raw, err := conn.Receive()
			results <- err
			if err != nil && !errors.Is(err, domain.ErrFrameTooLarge) {
				return
			}
			frames <- string(raw)
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	next := func() error {
		select {
		case err := <-results:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("server did not receive")
			return nil
		}
	}

	// Over the limit but within the discard ceiling: skipped, socket kept.
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 40))))
	assert.ErrorIs(t, next(), domain.ErrFrameTooLarge)
	<-frames

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"ciphertext":"x"}`)))
	require.NoError(t, next())
	assert.Equal(t, `{"ciphertext":"x"}`, <-frames)

	// Past the ceiling gorilla's read limit ends the connection.
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("z", 100))))
	err = next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrFrameTooLarge)
}
