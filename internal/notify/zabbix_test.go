package notify

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/types"
)

// startFakeZabbix runs a one-shot trapper server that records the received
// item and answers with the given info string.
func startFakeZabbix(t *testing.T, info string) (config.ZabbixNotifyConfig, chan zabbixItem) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	items := make(chan zabbixItem, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		header := make([]byte, zabbixHeaderSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		body := make([]byte, binary.LittleEndian.Uint64(header[5:]))
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		var req zabbixRequest
		if err := json.Unmarshal(body, &req); err == nil && len(req.Data) > 0 {
			items <- req.Data[0]
		}

		respBody, _ := json.Marshal(zabbixResponse{Response: "success", Info: info})
		reply := make([]byte, zabbixHeaderSize+len(respBody))
		copy(reply[0:5], zabbixMagic[:])
		binary.LittleEndian.PutUint64(reply[5:zabbixHeaderSize], uint64(len(respBody)))
		copy(reply[zabbixHeaderSize:], respBody)
		_, _ = conn.Write(reply)
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	return config.ZabbixNotifyConfig{
		Server:    "127.0.0.1",
		Port:      port,
		Host:      "recorder-1",
		Key:       "deadair.state",
		TimeoutMs: 2000,
	}, items
}

func TestSendStateZabbix_DeliversValue(t *testing.T) {
	cfg, items := startFakeZabbix(t, "processed: 1; failed: 0; total: 1; seconds spent: 0.000050")

	if err := SendStateZabbix(cfg, types.StateRecording, "start"); err != nil {
		t.Fatalf("SendStateZabbix: %v", err)
	}

	select {
	case item := <-items:
		if item.Host != "recorder-1" || item.Key != "deadair.state" {
			t.Errorf("item = %+v", item)
		}
		if item.Value != "state=recording reason=start" {
			t.Errorf("Value = %q", item.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("server received no item")
	}
}

func TestSendPauseZabbix_IncludesSilenceLength(t *testing.T) {
	cfg, items := startFakeZabbix(t, "processed: 1; failed: 0; total: 1; seconds spent: 0.000050")

	if err := SendPauseZabbix(cfg, 1500, 21.6); err != nil {
		t.Fatalf("SendPauseZabbix: %v", err)
	}

	item := <-items
	if item.Value != "state=paused silence_ms=1500 threshold=21.6" {
		t.Errorf("Value = %q", item.Value)
	}
}

func TestSendStateZabbix_UnprocessedItemsFail(t *testing.T) {
	cfg, _ := startFakeZabbix(t, "processed: 0; failed: 0; total: 1; seconds spent: 0.000045")

	if err := SendStateZabbix(cfg, types.StateIdle, "reset"); err == nil {
		t.Fatal("expected error when zabbix processed no items")
	}
}

func TestSendStateZabbix_UnconfiguredIsNoop(t *testing.T) {
	if err := SendStateZabbix(config.ZabbixNotifyConfig{}, types.StateIdle, "reset"); err != nil {
		t.Fatalf("unconfigured send: %v", err)
	}
}

func TestSendTestZabbix_RequiresConfig(t *testing.T) {
	if err := SendTestZabbix(config.ZabbixNotifyConfig{}); err == nil {
		t.Fatal("expected error for missing config")
	}
}
