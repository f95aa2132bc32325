package server

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type probeRequest struct {
	Name  string `json:"name" validate:"required,max=10"`
	Count int    `json:"count" validate:"omitempty,gte=1,lte=5"`
}

// receive reads one message from the send channel or fails the test.
func receive(t *testing.T, send chan any) map[string]any {
	t.Helper()
	select {
	case msg := <-send:
		result, ok := msg.(map[string]any)
		if !ok {
			t.Fatalf("message type = %T, want map[string]any", msg)
		}
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return nil
	}
}

func TestDecodeAndValidate_Valid(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "probe/update", Data: json.RawMessage(`{"name":"studio","count":3}`)}

	var req probeRequest
	if !DecodeAndValidate(cmd, send, &req) {
		t.Fatal("DecodeAndValidate() = false, want true")
	}
	if req.Name != "studio" || req.Count != 3 {
		t.Errorf("decoded = %+v, want {studio 3}", req)
	}
	if len(send) != 0 {
		t.Error("unexpected response sent for valid request")
	}
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "probe/update", Data: json.RawMessage(`{not json`)}

	var req probeRequest
	if DecodeAndValidate(cmd, send, &req) {
		t.Fatal("DecodeAndValidate() = true, want false")
	}

	result := receive(t, send)
	if result["type"] != "probe/update_result" {
		t.Errorf("type = %v, want probe/update_result", result["type"])
	}
	if result["success"] != false {
		t.Error("success = true, want false")
	}
}

func TestDecodeAndValidate_ValidationFailure(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "probe/update", Data: json.RawMessage(`{"name":"","count":9}`)}

	var req probeRequest
	if DecodeAndValidate(cmd, send, &req) {
		t.Fatal("DecodeAndValidate() = true, want false")
	}

	result := receive(t, send)
	if result["success"] != false {
		t.Error("success = true, want false")
	}
	if result["error"] == nil {
		t.Error("error missing from validation failure response")
	}
}

func TestDecodeAndValidate_EmptyBody(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "probe/get"}

	// Empty body decodes to the zero value, then validation runs
	var req struct{}
	if !DecodeAndValidate(cmd, send, &req) {
		t.Fatal("DecodeAndValidate() with empty body = false, want true")
	}
}

func TestHandleCommand_ProcessError(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "probe/update", Data: json.RawMessage(`{"name":"studio"}`)}

	HandleCommand(nil, cmd, send, func(req *probeRequest) error {
		return errors.New("device busy")
	})

	result := receive(t, send)
	if result["success"] != false {
		t.Error("success = true, want false")
	}
	if result["error"] != "device busy" {
		t.Errorf("error = %v, want device busy", result["error"])
	}
}

func TestHandleCommand_Success(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "probe/update", Data: json.RawMessage(`{"name":"studio"}`)}

	called := false
	HandleCommand(nil, cmd, send, func(req *probeRequest) error {
		called = true
		return nil
	})

	if !called {
		t.Fatal("process function not called")
	}
	result := receive(t, send)
	if result["success"] != true {
		t.Error("success = false, want true")
	}
}

func TestHandleActionAsync_ReturnsData(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "system/cleanup"}

	HandleActionAsync(cmd, send, func() (any, error) {
		return map[string]string{"status": "done"}, nil
	})

	result := receive(t, send)
	if result["success"] != true {
		t.Error("success = false, want true")
	}
	data, ok := result["data"].(map[string]string)
	if !ok || data["status"] != "done" {
		t.Errorf("data = %v, want status done", result["data"])
	}
}

func TestHandleActionAsync_RecoversPanic(t *testing.T) {
	send := make(chan any, 1)
	cmd := WSCommand{Type: "session/start"}

	HandleActionAsync(cmd, send, func() (any, error) {
		panic("boom")
	})

	result := receive(t, send)
	if result["success"] != false {
		t.Error("success = true, want false after panic")
	}
	if result["error"] != "internal error" {
		t.Errorf("error = %v, want internal error", result["error"])
	}
}

func TestSendSuccess_OmitsNilData(t *testing.T) {
	send := make(chan any, 1)
	SendSuccess(send, "config/get", nil)

	result := receive(t, send)
	if _, present := result["data"]; present {
		t.Error("data key present for nil data")
	}
}

func TestTrySend_FullChannelDoesNotBlock(t *testing.T) {
	send := make(chan any) // unbuffered and never read

	done := make(chan struct{})
	go func() {
		SendError(send, "probe/update", errors.New("x"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendError blocked on a full channel")
	}
}
