package mcptest

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const maxLine = 4 << 20

// ServeStdio answers newline-delimited messages read from r on w until r
// reaches EOF or ctx is done. Requests are handled concurrently.
func (p *Provider) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	var writeMu sync.Mutex
	send := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err := w.Write(data)
		return err
	}
	detach := p.attach(send)
	defer detach()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			if reply := p.Handle(ctx, line); reply != nil {
				_ = send(reply)
			}
		}()
	}
	return scanner.Err()
}

// WebSocketHandler upgrades each request and serves it as one session.
// Each text frame carries one message.
func (p *Provider) WebSocketHandler() http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.token != "" && r.Header.Get("Authorization") != "Bearer "+p.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		send := func(data []byte) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, data)
		}
		detach := p.attach(send)
		defer detach()

		var inflight sync.WaitGroup
		defer inflight.Wait()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				if reply := p.Handle(ctx, msg); reply != nil {
					_ = send(reply)
				}
			}()
		}
	})
}
