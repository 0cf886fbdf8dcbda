package notify

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/util"
)

// Zabbix trapper protocol framing.
const (
	zabbixTimeout    = 5 * time.Second
	zabbixHeaderSize = 13 // magic (5) + little endian body length (8)
	maxReplySize     = 64 << 10
)

var zabbixMagic = [5]byte{'Z', 'B', 'X', 'D', 0x01}

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

// sendZabbixEvent sends one trapper value. Missing server, host or key
// disables it.
func sendZabbixEvent(server string, port int, host, key, value string) error {
	if !util.IsConfigured(server, host, key) {
		return nil
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(server, strconv.Itoa(port)), zabbixTimeout)
	if err != nil {
		return util.WrapError("connect to zabbix", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(zabbixTimeout)); err != nil {
		return util.WrapError("set deadline", err)
	}

	frame, err := encodeZabbixFrame(zabbixRequest{
		Request: "sender data",
		Data:    []zabbixItem{{Host: host, Key: key, Value: value}},
	})
	if err != nil {
		return err
	}
	if _, err := conn.Write(frame); err != nil {
		return util.WrapError("write zabbix request", err)
	}

	resp, err := readZabbixReply(conn)
	if err != nil {
		return err
	}
	return resp.check()
}

// encodeZabbixFrame returns the header followed by the JSON body.
func encodeZabbixFrame(payload zabbixRequest) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, util.WrapError("marshal zabbix payload", err)
	}
	frame := make([]byte, zabbixHeaderSize, zabbixHeaderSize+len(data))
	copy(frame[0:5], zabbixMagic[:])
	binary.LittleEndian.PutUint64(frame[5:], uint64(len(data)))
	return append(frame, data...), nil
}

// readZabbixReply reads one framed reply.
func readZabbixReply(r io.Reader) (zabbixResponse, error) {
	var resp zabbixResponse

	header := make([]byte, zabbixHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return resp, util.WrapError("read zabbix reply header", err)
	}
	if !bytes.Equal(header[0:5], zabbixMagic[:]) {
		return resp, errors.New("invalid zabbix reply header")
	}

	size := binary.LittleEndian.Uint64(header[5:])
	switch {
	case size == 0:
		return resp, errors.New("empty zabbix reply")
	case size > maxReplySize:
		return resp, fmt.Errorf("zabbix reply too large: %d bytes (max %d)", size, maxReplySize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return resp, util.WrapError("read zabbix reply body", err)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, util.WrapError("parse zabbix reply", err)
	}
	return resp, nil
}

// check reports a rejected value or one whose host or key is unknown.
func (r zabbixResponse) check() error {
	if r.Response == "failed" {
		return fmt.Errorf("zabbix rejected data: %s", r.Info)
	}
	if strings.Contains(r.Info, "processed: 0;") && strings.Contains(r.Info, "failed: 0;") {
		return errors.New("zabbix processed no items (check host/key config)")
	}
	return nil
}
