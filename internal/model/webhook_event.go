package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidWebhookEvent = errors.New("webhook 报文格式不合法")

// WebhookEvent 网关推送的状态事件
// 只接受带 id 和 status 的 JSON 对象，其余字段原样保留在 Raw 中作为元数据
type WebhookEvent struct {
	ID     string `json:"id"` // 网关交易 ID
	Status string `json:"status"`
	Type   string `json:"type"`

	Raw json.RawMessage `json:"-"`
}

// ParseWebhookEvent 解析并校验 webhook 报文
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookEvent, err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("%w: 缺少 id", ErrInvalidWebhookEvent)
	}
	if event.Status == "" {
		return nil, fmt.Errorf("%w: 缺少 status", ErrInvalidWebhookEvent)
	}
	event.Raw = append(json.RawMessage(nil), body...)
	return &event, nil
}
