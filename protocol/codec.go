package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode 序列化一条出站消息并追加换行分隔符
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return append(b, '\n'), nil
}

// EncodeMsgpack 二进制帧：先走一遍 JSON 以复用字段标签与自定义编码，再转成 msgpack
func EncodeMsgpack(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("normalize message: %w", err)
	}
	out, err := msgpack.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("encode msgpack: %w", err)
	}
	return out, nil
}
