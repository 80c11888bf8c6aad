// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"voice-task-service/internal/service/stt"
	"voice-task-service/internal/service/transcript"
)

// Config holds audio settings for the streaming recognizer.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns the settings used by the mobile client's recorder.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// Adapter implements stt.Adapter and stt.AudioSink using Google Cloud Speech-to-Text.
type Adapter struct {
	client *speech.Client
	cfg    Config

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	cb     stt.Callback
	done   chan struct{}
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c, cfg: cfg}, nil
}

// RequestPermission reports true: access is governed by the service credentials.
func (a *Adapter) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

// Start opens a streaming recognition session, sends the initial config and
// starts delivering responses to cb.
func (a *Adapter) Start(ctx context.Context, cfg stt.Config, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}

	language := cfg.Language
	if language == "" {
		language = a.cfg.LanguageCode
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz:            a.cfg.SampleRateHz,
					LanguageCode:               language,
					MaxAlternatives:            3,
					EnableAutomaticPunctuation: false,
				},
				InterimResults:  cfg.InterimResults && a.cfg.InterimResults,
				SingleUtterance: !cfg.Continuous,
			},
		},
	})
	if err != nil {
		return err
	}

	a.attach(stream, cb)
	return nil
}

// attach makes stream the current stream and starts delivering its responses.
func (a *Adapter) attach(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	done := make(chan struct{})
	a.mu.Lock()
	a.stream = stream
	a.cb = cb
	a.done = done
	a.mu.Unlock()

	go a.listen(stream, cb, done)
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return errors.New("google: stream not started")
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes the stream and waits until the remaining responses were
// delivered.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	stream, done := a.stream, a.done
	a.stream = nil
	a.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// listen receives transcript responses from Google and invokes callbacks.
// A failed stream is detached and done is closed before OnError runs, so a
// callback that stops the recognizer does not wait on this goroutine.
func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback, done chan struct{}) {
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			close(done)
			return
		}
		if err != nil {
			code, msg := classifyError(err)
			log.Warn().Err(err).Str("code", code).Msg("Google recognition stream failed")
			a.detach(stream, done)
			cb.OnError(code, msg)
			return
		}
		if resp.GetError() != nil {
			a.detach(stream, done)
			cb.OnError("recognizer", resp.GetError().GetMessage())
			return
		}

		payload, final, ok := payloadFromResponse(resp)
		if !ok {
			continue
		}
		if final {
			cb.OnResult(payload)
		} else {
			cb.OnInterim(payload)
		}
	}
}

// detach forgets stream if it is still current and releases waiters on done.
func (a *Adapter) detach(stream speechpb.Speech_StreamingRecognizeClient, done chan struct{}) {
	a.mu.Lock()
	if a.stream == stream {
		a.stream = nil
		a.done = nil
	}
	a.mu.Unlock()
	close(done)
}

// payloadFromResponse converts a streaming response into a results payload.
// When the response carries a final result only final results are kept.
// A zero confidence means the recognizer did not score the alternative.
func payloadFromResponse(resp *speechpb.StreamingRecognizeResponse) (transcript.Payload, bool, bool) {
	final := false
	for _, r := range resp.GetResults() {
		if r.GetIsFinal() {
			final = true
			break
		}
	}

	var segs []transcript.ResultSegment
	for _, r := range resp.GetResults() {
		if final && !r.GetIsFinal() {
			continue
		}
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alts := make([]transcript.Alternative, 0, len(r.GetAlternatives()))
		for _, alt := range r.GetAlternatives() {
			a := transcript.Alternative{Text: alt.GetTranscript()}
			if c := alt.GetConfidence(); c > 0 {
				score := float64(c)
				a.Confidence = &score
			}
			alts = append(alts, a)
		}
		segs = append(segs, transcript.ResultSegment{Alternatives: alts})
	}
	if len(segs) == 0 {
		return transcript.Payload{}, false, false
	}
	return transcript.Payload{Variants: []transcript.Variant{transcript.ResultSegments{Segments: segs}}}, final, true
}

// classifyError maps a stream error to a recognizer error code.
func classifyError(err error) (code, message string) {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.OutOfRange:
		return stt.ErrorCodeNoSpeech, st.Message()
	case codes.Unavailable, codes.DeadlineExceeded:
		return stt.ErrorCodeNetwork, st.Message()
	default:
		return "recognizer", st.Message()
	}
}

// parseAudioEncoding maps an encoding name to the API enum, LINEAR16 when unknown.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch name {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
