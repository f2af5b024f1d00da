package mq

import (
	"github.com/vmihailenco/msgpack/v5"
)

// PromptMessage is a queued prompt. Prompt holds the prompt JSON as submitted
// and ExtraPNGInfo the client's extra_pnginfo JSON, if any.
type PromptMessage struct {
	ID           string `msgpack:"id"`
	Number       int64  `msgpack:"number"`
	ClientID     string `msgpack:"client_id,omitempty"`
	Prompt       []byte `msgpack:"prompt"`
	ExtraPNGInfo []byte `msgpack:"extra_pnginfo,omitempty"`
}

func EncodePrompt(msg *PromptMessage) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func DecodePrompt(data []byte) (*PromptMessage, error) {
	var msg PromptMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
