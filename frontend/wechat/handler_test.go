package wechat

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// recordingSink captures dispatched messages.
type recordingSink struct {
	user     string
	message  string
	imageURL string
	calls    int
}

func (s *recordingSink) Dispatch(user, message, imageURL string) {
	s.user, s.message, s.imageURL = user, message, imageURL
	s.calls++
}

func postXML(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/wx", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_Handshake(t *testing.T) {
	h := NewHandler("mytoken", &recordingSink{}, nil)

	q := url.Values{}
	q.Set("timestamp", "1700000000")
	q.Set("nonce", "xyz")
	q.Set("signature", signFor("mytoken", "1700000000", "xyz"))
	q.Set("echostr", "echo-me-back")

	req := httptest.NewRequest(http.MethodGet, "/wx?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Body.String(); got != "echo-me-back" {
		t.Errorf("body = %q, want echostr", got)
	}
}

func TestHandler_HandshakeBadSignature(t *testing.T) {
	h := NewHandler("mytoken", &recordingSink{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/wx?timestamp=1&nonce=2&signature=bad&echostr=x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Body.String(); got != "error" {
		t.Errorf("body = %q, want error", got)
	}
}

func TestHandler_TextMessage(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler("tok", sink, nil)

	w := postXML(t, h, `<xml>
		<ToUserName><![CDATA[gh_acct]]></ToUserName>
		<FromUserName><![CDATA[openid1]]></FromUserName>
		<CreateTime>1700000000</CreateTime>
		<MsgType><![CDATA[text]]></MsgType>
		<Content><![CDATA[讲个笑话]]></Content>
	</xml>`)

	if got := w.Body.String(); got != "success" {
		t.Errorf("body = %q, want success", got)
	}
	if sink.calls != 1 {
		t.Fatalf("Dispatch calls = %d, want 1", sink.calls)
	}
	if sink.user != "openid1" || sink.message != "讲个笑话" || sink.imageURL != "" {
		t.Errorf("dispatched (%q, %q, %q)", sink.user, sink.message, sink.imageURL)
	}
}

func TestHandler_VoiceMessage(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler("tok", sink, nil)

	w := postXML(t, h, `<xml>
		<FromUserName><![CDATA[openid1]]></FromUserName>
		<MsgType><![CDATA[voice]]></MsgType>
		<Recognition><![CDATA[明天会下雨吗]]></Recognition>
	</xml>`)

	if got := w.Body.String(); got != "success" {
		t.Errorf("body = %q, want success", got)
	}
	if sink.message != "明天会下雨吗" {
		t.Errorf("dispatched message = %q", sink.message)
	}
}

func TestHandler_VoiceWithoutRecognition(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler("tok", sink, nil)

	postXML(t, h, `<xml>
		<FromUserName><![CDATA[openid1]]></FromUserName>
		<MsgType><![CDATA[voice]]></MsgType>
	</xml>`)

	if sink.message != voiceFallback {
		t.Errorf("dispatched message = %q, want the recognition fallback", sink.message)
	}
}

func TestHandler_ImageMessage(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler("tok", sink, nil)

	w := postXML(t, h, `<xml>
		<FromUserName><![CDATA[openid1]]></FromUserName>
		<MsgType><![CDATA[image]]></MsgType>
		<PicUrl><![CDATA[http://example.com/pic.jpg]]></PicUrl>
	</xml>`)

	if got := w.Body.String(); got != "success" {
		t.Errorf("body = %q, want success", got)
	}
	if sink.message != imagePrompt {
		t.Errorf("dispatched message = %q, want the image prompt", sink.message)
	}
	if sink.imageURL != "http://example.com/pic.jpg" {
		t.Errorf("dispatched imageURL = %q", sink.imageURL)
	}
}

func TestHandler_UnsupportedTypeGetsPassiveReply(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler("tok", sink, nil)
	h.now = func() int64 { return 1700000042 }

	w := postXML(t, h, `<xml>
		<ToUserName><![CDATA[gh_acct]]></ToUserName>
		<FromUserName><![CDATA[openid1]]></FromUserName>
		<MsgType><![CDATA[location]]></MsgType>
	</xml>`)

	if sink.calls != 0 {
		t.Errorf("Dispatch called %d times for unsupported type", sink.calls)
	}

	body, _ := io.ReadAll(w.Body)
	env, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("passive reply does not parse: %v", err)
	}
	if env.ToUserName != "openid1" || env.FromUserName != "gh_acct" {
		t.Errorf("reply direction not swapped: to=%q from=%q", env.ToUserName, env.FromUserName)
	}
	if env.Content != replyUnsupported {
		t.Errorf("reply content = %q", env.Content)
	}
	if env.CreateTime != 1700000042 {
		t.Errorf("reply CreateTime = %d", env.CreateTime)
	}
}

func TestHandler_MalformedBody(t *testing.T) {
	h := NewHandler("tok", &recordingSink{}, nil)

	w := postXML(t, h, `not xml at all`)
	if got := w.Body.String(); got != "error" {
		t.Errorf("body = %q, want error", got)
	}
}

func TestHandler_RejectsOtherMethods(t *testing.T) {
	h := NewHandler("tok", &recordingSink{}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/wx", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Body.String(); got != "error" {
		t.Errorf("body = %q, want error", got)
	}
}
