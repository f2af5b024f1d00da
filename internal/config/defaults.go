package config

import (
	"errors"
	"time"
)

const (
	DefaultPort       = 8188
	DefaultHost       = "127.0.0.1"
	DefaultCesilkHome = "~/.cesilk"
	DefaultQueueSize  = 64

	DefaultS3Profile = "default"
	DefaultS3Region  = "ap-northeast-1"
)

var (
	DefaultPromptTopic = "cesilk/prompts"
)

// JST is the fixed UTC+9 zone used for dated upload prefixes and @@...@@ placeholders.
var JST = time.FixedZone("JST", 9*60*60)

var (
	ErrCesilkHomeNotSet       = errors.New("cesilk home directory is not set")
	ErrCesilkHomeExpandFailed = errors.New("failed to expand cesilk home directory")
)
