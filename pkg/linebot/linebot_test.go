package linebot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	if !ValidateSignature("secret", body, sign("secret", body)) {
		t.Error("valid signature rejected")
	}
	if ValidateSignature("secret", body, sign("wrong", body)) {
		t.Error("forged signature accepted")
	}
	if ValidateSignature("secret", body, "not base64") {
		t.Error("garbage signature accepted")
	}
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{"events":[
		{"type":"message","replyToken":"rt1","message":{"type":"text","text":"滑鼠"}},
		{"type":"follow","replyToken":"rt2"}
	]}`)
	events, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Type != EventMessage || events[0].Message.Text != "滑鼠" || events[0].ReplyToken != "rt1" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Type != EventFollow {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestParseWebhookMalformed(t *testing.T) {
	if _, err := ParseWebhook([]byte(`not json`)); err == nil {
		t.Fatal("want error")
	}
}

func TestReply(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			t.Errorf("auth = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := NewClient("token-1")
	c.endpoint = srv.URL

	err := c.Reply(context.Background(), "rt1", TextMessage("你好"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if string(got["replyToken"]) != `"rt1"` {
		t.Errorf("replyToken = %s", got["replyToken"])
	}
}

func TestReplyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad")
	c.endpoint = srv.URL
	if err := c.Reply(context.Background(), "rt", TextMessage("x")); err == nil {
		t.Fatal("want error")
	}
}

func TestCarouselCap(t *testing.T) {
	bubbles := make([]map[string]any, 15)
	for i := range bubbles {
		bubbles[i] = ProductBubble("p", "https://x", "https://img", "momo", 100)
	}
	c := Carousel(bubbles)
	contents := c["contents"].([]any)
	if len(contents) != 12 {
		t.Errorf("carousel holds %d bubbles, want 12", len(contents))
	}
}

func TestProductBubble(t *testing.T) {
	b := ProductBubble("無線滑鼠", "https://shop/1", "https://img/1.jpg", "PChome", 590)
	if b["type"] != "bubble" {
		t.Errorf("type = %v", b["type"])
	}
	hero := b["hero"].(map[string]any)
	if hero["url"] != "https://img/1.jpg" {
		t.Errorf("hero url = %v", hero["url"])
	}
	// The bubble must be serializable for the reply payload.
	if _, err := json.Marshal(b); err != nil {
		t.Fatalf("marshal: %v", err)
	}
}
