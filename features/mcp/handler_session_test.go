package mcp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_HandleMessage_MissingSessionID(t *testing.T) {
	handler := NewHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp/messages", nil)
	rec := httptest.NewRecorder()
	handler.HandleMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
	errMap, ok := resp["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", errMap["code"])
}

func TestHandler_HandleMessage_SessionNotFound(t *testing.T) {
	handler := NewHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=unknown-session", nil)
	rec := httptest.NewRecorder()
	handler.HandleMessage(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_HandleMessage_InvalidJSON(t *testing.T) {
	handler := NewHandler(nil, nil, nil)
	handler.sessions["s1"] = make(chan string, 1)

	req := httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=s1", bytes.NewBufferString("{invalid-json"))
	rec := httptest.NewRecorder()
	handler.HandleMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_JSON")
}

func TestHandler_HandleMessage_DeliversToSession(t *testing.T) {
	handler := NewHandler(nil, nil, nil)
	msgChan := make(chan string, 1)
	handler.sessions["s1"] = msgChan

	body, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "method": "ping", "id": 7})
	req := httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=s1", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	handler.HandleMessage(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case msg := <-msgChan:
		var resp JSONRPCResponse
		require.NoError(t, json.Unmarshal([]byte(msg), &resp))
		assert.EqualValues(t, 7, resp.ID)
		assert.Nil(t, resp.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for session message")
	}
}

func TestHandler_Deliver_DropsWhenFull(t *testing.T) {
	handler := NewHandler(nil, nil, nil)
	msgChan := make(chan string, 1)
	handler.sessions["s1"] = msgChan

	handler.deliver("s1", "first")
	handler.deliver("s1", "second")
	handler.deliver("gone", "third")

	assert.Equal(t, "first", <-msgChan)
	assert.Empty(t, msgChan)
}
