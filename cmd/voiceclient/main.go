// Command voiceclient drives one dictation session against the HTTP API,
// either by relaying scripted recognition events or by streaming a WAV file.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// 100ms of 16kHz 16-bit mono audio
const (
	chunkSize       = 3200
	chunkIntervalMs = 100
)

type client struct {
	base string
	http *http.Client
}

func main() {
	server := flag.String("server", "http://localhost:8080", "HTTP API base URL")
	mode := flag.String("mode", "relay", "relay: push scripted events; audio: stream a WAV file")
	say := flag.String("say", "buy milk and call mom then water the plants", "utterance to relay")
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "WAV file (16kHz 16-bit mono) for audio mode")
	language := flag.String("language", "en-US", "recognition language")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	c := &client{base: strings.TrimRight(*server, "/") + "/v1", http: &http.Client{Timeout: 30 * time.Second}}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.call(http.MethodPost, "/sessions", map[string]any{"permissionGranted": true, "language": *language}, &created); err != nil {
		log.Fatal().Err(err).Msg("Create session failed")
	}
	log.Info().Str("sessionId", created.ID).Msg("Session created")
	session := "/sessions/" + created.ID

	if err := c.call(http.MethodPost, session+"/start", nil, nil); err != nil {
		log.Fatal().Err(err).Msg("Start failed")
	}

	switch *mode {
	case "relay":
		if err := c.relay(session, *say); err != nil {
			log.Fatal().Err(err).Msg("Relaying events failed")
		}
	case "audio":
		if err := c.stream(session, *audioFile); err != nil {
			log.Fatal().Err(err).Msg("Streaming audio failed")
		}
	default:
		log.Fatal().Str("mode", *mode).Msg("Unknown mode")
	}

	var outcome json.RawMessage
	if err := c.call(http.MethodPost, session+"/stop", nil, &outcome); err != nil {
		log.Fatal().Err(err).Msg("Stop failed")
	}
	log.Info().RawJSON("outcome", outcome).Msg("Session stopped")

	var tasks json.RawMessage
	if err := c.call(http.MethodGet, "/tasks", nil, &tasks); err != nil {
		log.Fatal().Err(err).Msg("Listing tasks failed")
	}
	log.Info().RawJSON("tasks", tasks).Msg("Stored tasks")
}

// relay pushes one interim per word and a final result carrying two
// alternatives, the way a device recognizer reports progress.
func (c *client) relay(session, utterance string) error {
	words := strings.Fields(utterance)
	for i := range words {
		ev := map[string]any{"kind": "interim", "payload": map[string]any{"transcript": strings.Join(words[:i+1], " ")}}
		if err := c.call(http.MethodPost, session+"/events", ev, nil); err != nil {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}

	final := map[string]any{
		"kind": "result",
		"payload": map[string]any{
			"results": []any{map[string]any{
				"alternatives": []any{
					map[string]any{"transcript": utterance, "confidence": 0.91},
					map[string]any{"transcript": strings.ToUpper(utterance), "confidence": 0.42},
				},
			}},
		},
	}
	return c.call(http.MethodPost, session+"/events", final, nil)
}

// stream sends a WAV file in real-time sized chunks.
func (c *client) stream(session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return fmt.Errorf("%s is not a WAV file", path)
	}
	if format := binary.LittleEndian.Uint16(header[20:22]); format != 1 {
		return fmt.Errorf("only PCM supported, got format %d", format)
	}
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	log.Info().Uint32("sampleRate", sampleRate).Msg("Streaming WAV file")

	chunk := make([]byte, chunkSize)
	var total int
	for {
		n, err := f.Read(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := c.post(session+"/audio", "application/octet-stream", chunk[:n]); err != nil {
			return err
		}
		total += n
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}
	log.Info().Int("bytes", total).Msg("Finished streaming")
	return nil
}

func (c *client) call(method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) post(path, contentType string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, nil)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
