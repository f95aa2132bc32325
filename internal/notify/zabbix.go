package notify

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/types"
	"github.com/castwork/deadair/internal/util"
)

// Zabbix protocol constants.
const (
	defaultZabbixTimeout = 5 * time.Second
	zabbixHeaderSize     = 13        // "ZBXD\x01" (5) + uint64 length (8)
	maxReplySize         = 64 * 1024 // 64KB max reply to prevent memory exhaustion
)

// zabbixMagic is the protocol header prefix.
var zabbixMagic = [5]byte{'Z', 'B', 'X', 'D', 0x01}

// Zabbix protocol types.
type zabbixRequest struct {
	Request string       `json:"request"`
	Data    []zabbixItem `json:"data"`
}

type zabbixItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type zabbixResponse struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}

// zabbixTimeout returns the configured timeout or the default.
func zabbixTimeout(cfg config.ZabbixNotifyConfig) time.Duration {
	if cfg.TimeoutMs > 0 {
		return time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return defaultZabbixTimeout
}

// sendZabbixValue sends a single trapper item to the Zabbix server.
func sendZabbixValue(cfg config.ZabbixNotifyConfig, value string) error {
	if cfg.Server == "" || cfg.Host == "" || cfg.Key == "" {
		return nil
	}

	timeout := zabbixTimeout(cfg)
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return util.WrapError("connect to zabbix", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return util.WrapError("set deadline", err)
	}

	req := zabbixRequest{
		Request: "sender data",
		Data:    []zabbixItem{{Host: cfg.Host, Key: cfg.Key, Value: value}},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return util.WrapError("marshal zabbix payload", err)
	}

	// Build header: "ZBXD\x01" + 8-byte little endian length
	header := make([]byte, zabbixHeaderSize)
	copy(header[0:5], zabbixMagic[:])
	binary.LittleEndian.PutUint64(header[5:], uint64(len(data)))

	if _, err := conn.Write(header); err != nil {
		return util.WrapError("write zabbix header", err)
	}
	if _, err := conn.Write(data); err != nil {
		return util.WrapError("write zabbix payload", err)
	}

	// Read reply header
	replyHeader := make([]byte, zabbixHeaderSize)
	if _, err := io.ReadFull(conn, replyHeader); err != nil {
		return util.WrapError("read zabbix reply header", err)
	}
	if !bytes.Equal(replyHeader[0:5], zabbixMagic[:]) {
		return fmt.Errorf("invalid zabbix reply header")
	}

	replyLen := binary.LittleEndian.Uint64(replyHeader[5:zabbixHeaderSize])
	if replyLen == 0 {
		return fmt.Errorf("empty zabbix reply")
	}
	if replyLen > maxReplySize {
		return fmt.Errorf("zabbix reply too large: %d bytes (max %d)", replyLen, maxReplySize)
	}

	// Read reply body
	reply := make([]byte, replyLen)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return util.WrapError("read zabbix reply body", err)
	}

	var resp zabbixResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return util.WrapError("parse zabbix reply", err)
	}

	// Check for explicit failure response
	if resp.Response == "failed" {
		return fmt.Errorf("zabbix rejected data: %s", resp.Info)
	}

	// Check for no items processed (host/key not found in Zabbix)
	if strings.Contains(resp.Info, "processed: 0;") && strings.Contains(resp.Info, "failed: 0;") {
		return fmt.Errorf("zabbix processed no items (check host/key config)")
	}

	return nil
}

// SendStateZabbix sends a state transition to Zabbix.
func SendStateZabbix(cfg config.ZabbixNotifyConfig, state types.RecordingState, reason string) error {
	return sendZabbixValue(cfg, fmt.Sprintf("state=%s reason=%s", state, reason))
}

// SendPauseZabbix sends a pause alert with the measured silence length.
func SendPauseZabbix(cfg config.ZabbixNotifyConfig, silenceMs int64, threshold float64) error {
	return sendZabbixValue(cfg,
		fmt.Sprintf("state=%s silence_ms=%d threshold=%.1f", types.StatePaused, silenceMs, threshold))
}

// SendTestZabbix sends a test message to verify Zabbix config.
func SendTestZabbix(cfg config.ZabbixNotifyConfig) error {
	if cfg.Server == "" || cfg.Host == "" || cfg.Key == "" {
		return fmt.Errorf("zabbix server, host or key not configured")
	}
	return sendZabbixValue(cfg, "state=TEST source=deadair")
}
