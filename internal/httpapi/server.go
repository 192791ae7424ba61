package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voiceboat/voiceboat/internal/config"
	"github.com/voiceboat/voiceboat/internal/conversation"
	"github.com/voiceboat/voiceboat/internal/observability"
	"github.com/voiceboat/voiceboat/internal/protocol"
	"github.com/voiceboat/voiceboat/internal/telephony"
	"github.com/voiceboat/voiceboat/internal/voice"
)

// Dialog is the slice of the conversation orchestrator the text channel
// needs.
type Dialog interface {
	HandleText(ctx context.Context, conversationID, text string, lang conversation.Language) (conversation.TurnResult, error)
}

// VoiceLoop is the slice of the turn controller the voice endpoints need.
type VoiceLoop interface {
	ProcessOnce(ctx context.Context, conversationID string, audioData []byte, lang conversation.Language) (voice.OnceResult, error)
	RunSession(ctx context.Context, conversationID string, lang conversation.Language, inbound <-chan any, outbound chan<- any) error
}

type Server struct {
	cfg      config.Config
	dialog   Dialog
	loop     VoiceLoop
	gateway  telephony.Gateway
	metrics  *observability.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, dialog Dialog, loop VoiceLoop, gateway telephony.Gateway, metrics *observability.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		dialog:  dialog,
		loop:    loop,
		gateway: gateway,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients (carriers) omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				if strings.EqualFold(u.Host, r.Host) {
					return true
				}
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || strings.EqualFold(allowed, origin) {
						return true
					}
				}
				return false
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/stats/turns", s.handleTurnStats)

	r.Post("/chat", s.handleChat)
	r.Post("/voice/process", s.handleVoiceProcess)
	r.Post("/telephony/voice", s.handleTelephonyVoice)
	r.Get("/telephony/media-stream-ws", s.handleMediaStreamWS)

	corsOptions := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		corsOptions.AllowedOrigins = s.cfg.AllowedOrigins
	}
	return cors.New(corsOptions).Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleTurnStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.StageSnapshot())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.dialog.HandleText(r.Context(), req.ConversationID, req.Text, conversation.NormalizeLanguage(req.Language))
	if err != nil {
		s.respondTurnError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ChatResponse{
		Text:            res.ReplyText,
		ShouldEnd:       res.ShouldEnd,
		NeedsEscalation: res.NeedsEscalation,
	})
}

func (s *Server) handleVoiceProcess(w http.ResponseWriter, r *http.Request) {
	var req VoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	audioData, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		respondError(w, http.StatusBadRequest, "audio_data is not valid base64")
		return
	}

	res, err := s.loop.ProcessOnce(r.Context(), req.ConversationID, audioData, conversation.NormalizeLanguage(req.Language))
	if err != nil {
		s.respondTurnError(w, err)
		return
	}

	out := VoiceResponse{
		TranscribedText: res.TranscribedText,
		ResponseText:    res.ResponseText,
		AudioFormat:     res.AudioFormat,
		ProactivePrompt: res.ProactivePrompt,
		ShouldEnd:       res.ShouldEnd,
		NeedsEscalation: res.NeedsEscalation,
	}
	if len(res.Audio) > 0 {
		out.Audio = base64.StdEncoding.EncodeToString(res.Audio)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTelephonyVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form payload")
		return
	}
	callSID := strings.TrimSpace(r.PostFormValue("CallSid"))
	from := strings.TrimSpace(r.PostFormValue("From"))
	to := strings.TrimSpace(r.PostFormValue("To"))
	if callSID == "" {
		respondError(w, http.StatusBadRequest, "CallSid is required")
		return
	}

	doc, err := s.gateway.AnswerCall(r.Context(), callSID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	body, err := doc.Render()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleMediaStreamWS(w http.ResponseWriter, r *http.Request) {
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	if conversationID == "" {
		respondError(w, http.StatusBadRequest, "query parameter conversation_id is required")
		return
	}
	lang := conversation.NormalizeLanguage(r.URL.Query().Get("language"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.loop.RunSession(gctx, conversationID, lang, inbound, outbound)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case msg, ok := <-outbound:
				if !ok {
					return nil
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return nil
				}
			}
		}
	})

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseCallerMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:           protocol.TypeErrorEvent,
				ConversationID: conversationID,
				Code:           "invalid_caller_message",
				Source:         "gateway",
				Retryable:      false,
				Detail:         err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if the
				// outbound queue is saturated.
			}
			continue
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	_ = g.Wait()
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

func (s *Server) respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrSessionTerminal):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrTurnInFlight):
		respondError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.log.Error("turn failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, errorResponse{Detail: detail})
}
