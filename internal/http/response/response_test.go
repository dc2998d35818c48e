package response

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest("GET", "/", nil)
	return c, recorder
}

func decodeEnvelope(t *testing.T, body []byte) Response {
	t.Helper()
	var envelope Response
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return envelope
}

func TestSuccessEnvelope(t *testing.T) {
	c, recorder := newTestContext(t)
	Success(c, gin.H{"sent": true})

	if recorder.Code != 200 {
		t.Fatalf("http status want 200 got %d", recorder.Code)
	}
	envelope := decodeEnvelope(t, recorder.Body.Bytes())
	if envelope.StatusCode != CodeOK {
		t.Fatalf("status_code want %d got %d", CodeOK, envelope.StatusCode)
	}
	if envelope.Msg != "success" {
		t.Fatalf("msg want success got %q", envelope.Msg)
	}
}

func TestSuccessWithMsgEnvelope(t *testing.T) {
	c, recorder := newTestContext(t)
	SuccessWithMsg(c, "OTP sent successfully!", gin.H{"sent": true})

	envelope := decodeEnvelope(t, recorder.Body.Bytes())
	if envelope.Msg != "OTP sent successfully!" {
		t.Fatalf("msg want custom message got %q", envelope.Msg)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data should be an object, got %T", envelope.Data)
	}
	if data["sent"] != true {
		t.Fatalf("data.sent want true got %v", data["sent"])
	}
}

func TestErrorAttachesRequestID(t *testing.T) {
	c, recorder := newTestContext(t)
	c.Set("request_id", "req-123")
	Error(c, CodeInternal, "Error sending OTP")

	if recorder.Code != 200 {
		t.Fatalf("errors keep http 200, got %d", recorder.Code)
	}
	envelope := decodeEnvelope(t, recorder.Body.Bytes())
	if envelope.StatusCode != CodeInternal {
		t.Fatalf("status_code want %d got %d", CodeInternal, envelope.StatusCode)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data should carry request_id, got %T", envelope.Data)
	}
	if data["request_id"] != "req-123" {
		t.Fatalf("request_id want req-123 got %v", data["request_id"])
	}
}

func TestErrorWithDataKeepsPayload(t *testing.T) {
	c, recorder := newTestContext(t)
	c.Set("request_id", "req-456")
	ErrorWithData(c, CodeBadRequest, "Invalid OTP. Attempts left: 4", gin.H{"attempts_remaining": 4})

	envelope := decodeEnvelope(t, recorder.Body.Bytes())
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data should be an object, got %T", envelope.Data)
	}
	if data["attempts_remaining"] != float64(4) {
		t.Fatalf("attempts_remaining want 4 got %v", data["attempts_remaining"])
	}
	if data["request_id"] != "req-456" {
		t.Fatalf("request_id want req-456 got %v", data["request_id"])
	}
}

func TestNotFoundAndBadRequestCodes(t *testing.T) {
	c, recorder := newTestContext(t)
	NotFound(c, "No OTP request found or OTP expired")
	envelope := decodeEnvelope(t, recorder.Body.Bytes())
	if envelope.StatusCode != CodeNotFound {
		t.Fatalf("status_code want %d got %d", CodeNotFound, envelope.StatusCode)
	}

	c, recorder = newTestContext(t)
	BadRequest(c, "Email is required")
	envelope = decodeEnvelope(t, recorder.Body.Bytes())
	if envelope.StatusCode != CodeBadRequest {
		t.Fatalf("status_code want %d got %d", CodeBadRequest, envelope.StatusCode)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("smtp dial failed")
	wrapped := WrapError(CodeInternal, "Error sending OTP", cause)

	if wrapped.Error() != "Error sending OTP: smtp dial failed" {
		t.Fatalf("unexpected error text %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("wrapped error should unwrap to cause")
	}

	bare := WrapError(CodeBadRequest, "Invalid email address", nil)
	if bare.Error() != "Invalid email address" {
		t.Fatalf("bare error text want message only, got %q", bare.Error())
	}
}
