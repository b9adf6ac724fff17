package wechat

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/yichens/wxrelay"
)

// Fixed user-facing strings. The Official Account audience is Chinese, as was
// the service this relay replaces.
const (
	replyUnsupported = "抱歉，暂不支持此类型的消息。"
	voiceFallback    = "未能识别语音内容"
	imagePrompt      = "请描述这张图片"
)

// Sink receives inbound messages for asynchronous reply generation. Dispatch
// must return immediately; the reply is produced and delivered out-of-band.
type Sink interface {
	Dispatch(user, message, imageURL string)
}

// Handler is the webhook endpoint: GET performs the ownership handshake, POST
// accepts message envelopes. Every POST that reaches the model is acknowledged
// with a bare "success" before generation starts; only unsupported message
// types get a synchronous inline XML reply, because that path does no model
// call and always fits the five-second deadline.
type Handler struct {
	token  string
	sink   Sink
	logger *slog.Logger

	now func() int64 // test hook for passive reply CreateTime
}

// NewHandler creates the webhook handler. token is the shared verification
// token configured on the platform side.
func NewHandler(token string, sink Sink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = wxrelay.NopLogger
	}
	return &Handler{
		token:  token,
		sink:   sink,
		logger: logger,
		now:    wxrelay.NowUnix,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handshake(w, r)
	case http.MethodPost:
		h.inbound(w, r)
	default:
		writeText(w, "error")
	}
}

// handshake answers the one-time endpoint verification: echo echostr verbatim
// when the signature checks out, the literal "error" otherwise.
func (h *Handler) handshake(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if CheckSignature(h.token, q.Get("timestamp"), q.Get("nonce"), q.Get("signature")) {
		writeText(w, q.Get("echostr"))
		return
	}
	h.logger.Warn("handshake signature mismatch", "remote", r.RemoteAddr)
	writeText(w, "error")
}

// inbound processes a message envelope. Nothing may escape to the transport
// layer: a malformed or panicking request is answered with the literal
// "error", since an unanswered webhook surfaces a platform error prompt to
// the end user.
func (h *Handler) inbound(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic processing inbound message", "panic", rec)
			writeText(w, "error")
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("read inbound body", "error", err)
		writeText(w, "error")
		return
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		h.logger.Error("parse inbound envelope", "error", err)
		writeText(w, "error")
		return
	}

	user := env.FromUserName
	switch env.MsgType {
	case "text":
		h.sink.Dispatch(user, env.Content, "")
		writeText(w, "success")

	case "voice":
		content := env.Recognition
		if content == "" {
			content = voiceFallback
		}
		h.sink.Dispatch(user, content, "")
		writeText(w, "success")

	case "image":
		h.sink.Dispatch(user, imagePrompt, env.PicUrl)
		writeText(w, "success")

	default:
		reply, err := TextReply(user, env.ToUserName, h.now(), replyUnsupported)
		if err != nil {
			h.logger.Error("marshal passive reply", "error", err)
			writeText(w, "error")
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write(reply)
	}
}

func writeText(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s))
}
