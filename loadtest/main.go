package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type options struct {
	baseURL   string
	pairs     int
	msgCount  int
	interval  time.Duration
	drainWait time.Duration
}

type authResponse struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var (
	sent     atomic.Int64
	received atomic.Int64
	failures atomic.Int64
)

func main() {
	var opts options
	flagSet := pflag.NewFlagSet("loadtest", pflag.ExitOnError)
	flagSet.StringVar(&opts.baseURL, "url", "http://localhost:8080", "server base URL")
	flagSet.IntVar(&opts.pairs, "pairs", 50, "number of user pairs chatting concurrently")
	flagSet.IntVar(&opts.msgCount, "messages", 20, "messages sent by each user")
	flagSet.DurationVar(&opts.interval, "interval", 10*time.Millisecond, "pause between messages")
	flagSet.DurationVar(&opts.drainWait, "drain", 3*time.Second, "how long to keep reading after the last send")
	flagSet.Parse(os.Args[1:])

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	logger.Info().Int("users", opts.pairs*2).Int("messages_each", opts.msgCount).Msg("starting stress test")
	start := time.Now()

	// Pairs: u_0_a talks to u_0_b, u_1_a to u_1_b...
	var wg sync.WaitGroup
	for i := 0; i < opts.pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(logger, opts, pairID)
		}(i)
	}
	wg.Wait()

	logger.Info().
		Int64("sent", sent.Load()).
		Int64("received", received.Load()).
		Int64("failures", failures.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("load test complete")
}

func runPair(logger zerolog.Logger, opts options, pairID int) {
	run := time.Now().UnixNano()
	userA := fmt.Sprintf("u_%d_%d_a", run, pairID)
	userB := fmt.Sprintf("u_%d_%d_b", run, pairID)
	pass := "password123"

	tokenA := authenticate(logger, opts.baseURL, userA, pass)
	tokenB := authenticate(logger, opts.baseURL, userB, pass)
	if tokenA == "" || tokenB == "" {
		failures.Add(1)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go spamChat(logger, opts, &wg, tokenA, userA, userB)
	go spamChat(logger, opts, &wg, tokenB, userB, userA)
	wg.Wait()
}

// authenticate registers (ignoring conflicts) and logs in.
func authenticate(logger zerolog.Logger, baseURL, username, password string) string {
	creds := map[string]string{"username": username, "password": password}
	if resp, err := postJSON(baseURL+"/register", creds); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON(baseURL+"/login", creds)
	if err != nil {
		logger.Error().Err(err).Str("user", username).Msg("login failed")
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Error().Int("status", resp.StatusCode).Str("user", username).Msg("login rejected")
		return ""
	}

	var data authResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ""
	}
	return data.Token
}

func spamChat(logger zerolog.Logger, opts options, wg *sync.WaitGroup, token, me, peer string) {
	defer wg.Done()

	wsURL := "ws" + strings.TrimPrefix(opts.baseURL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Error().Err(err).Str("user", me).Msg("websocket connect failed")
		failures.Add(1)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Event {
			case "chat:message":
				received.Add(1)
			case "chat:error":
				failures.Add(1)
				logger.Warn().RawJSON("error", f.Data).Str("user", me).Msg("server rejected a command")
			}
		}
	}()

	if err := send(conn, "chat:open", map[string]string{"with": peer}); err != nil {
		logger.Error().Err(err).Str("user", me).Msg("open failed")
		failures.Add(1)
		return
	}
	for i := 0; i < opts.msgCount; i++ {
		text := fmt.Sprintf("LoadTest Msg %d from %s", i, me)
		if err := send(conn, "chat:send", map[string]string{"to": peer, "text": text}); err != nil {
			logger.Error().Err(err).Str("user", me).Msg("send failed")
			failures.Add(1)
			break
		}
		sent.Add(1)
		time.Sleep(opts.interval)
	}

	conn.SetReadDeadline(time.Now().Add(opts.drainWait))
	<-done
	logger.Debug().Str("user", me).Int("messages", opts.msgCount).Msg("finished sending")
}

func send(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(frame{Event: event, Data: raw})
}

func postJSON(url string, data any) (*http.Response, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return http.Post(url, "application/json", bytes.NewBuffer(jsonData))
}
