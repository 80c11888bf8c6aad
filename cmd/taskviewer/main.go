// Command taskviewer shows created tasks and session notices in a browser as
// they are published to Kafka.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const page = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Voice tasks</title>
<style>
body { font-family: sans-serif; margin: 2em; }
li { margin: .3em 0; }
.notice { color: #666; }
</style>
</head>
<body>
<h1>Voice tasks</h1>
<ul id="events"></ul>
<script>
const list = document.getElementById("events");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (msg) => {
  const ev = JSON.parse(msg.data);
  const p = ev.payload || {};
  const li = document.createElement("li");
  if (p.tasks) {
    li.textContent = ev.sessionId + ": " + p.tasks.map(t => t.title).join(", ");
  } else {
    li.className = "notice";
    li.textContent = ev.sessionId + ": " + (p.title || ev.eventType) + " " + (p.message || "");
  }
  list.prepend(li);
};
</script>
</body>
</html>`

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string) {
	// Partition reader without a consumer group, so every viewer sees every event.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-time.Hour)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Could not rewind reader")
	}
	log.Info().Str("topic", topic).Msg("Consuming from Kafka (last hour)")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		event, err := decodeEvent(msg)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping undecodable message")
			continue
		}
		log.Debug().Str("topic", topic).Str("sessionId", event.SessionID).Str("eventType", event.EventType).Msg("Received")

		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	addr := flag.String("addr", ":8081", "HTTP listen address")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicTasks := flag.String("topic-tasks", "voice.tasks.created", "Created tasks topic")
	topicNotices := flag.String("topic-notices", "voice.session.notices", "Session notices topic")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	go hub.run(ctx.Done())

	list := strings.Split(*brokers, ",")
	go consumeKafka(ctx, hub, list, *topicTasks)
	go consumeKafka(ctx, hub, list, *topicNotices)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/ws", wsHandler(hub))

	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Strs("brokers", list).Str("topicTasks", *topicTasks).Str("topicNotices", *topicNotices).Msg("Task viewer starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}
