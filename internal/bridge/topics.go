package bridge

import (
	"encoding/hex"
	"net"
	"strings"
)

// Topic sizing. Topics are measured in bytes.
const (
	// MaxTopicLen is the longest full topic the bridge will emit.
	MaxTopicLen = 250

	// MaxBaseLen bounds the base topic, including a terminating byte on
	// devices that store it in a fixed buffer; the usable length is one less.
	MaxBaseLen = 128

	// MaxSubtopicLen is the longest subtopic delivered to the application.
	MaxSubtopicLen = MaxTopicLen - MaxBaseLen

	// Separator joins the base and the subtopic.
	Separator = "/"
)

// BaseTopic derives the device base topic from a prefix and hardware
// address: prefix + "_" + lowercase hex of every address byte.
func BaseTopic(prefix string, mac net.HardwareAddr) string {
	return truncate(prefix+"_"+hex.EncodeToString(mac), MaxBaseLen-1)
}

// Compose returns base + "/" + subtopic, truncated to MaxTopicLen bytes.
// Over-length topics are cut silently.
func Compose(base, subtopic string) string {
	return truncate(base+Separator+subtopic, MaxTopicLen)
}

// SplitTopic strips base + "/" from topic. It reports false when topic is
// outside the base namespace or nothing follows the separator. The returned
// subtopic is truncated to MaxSubtopicLen bytes.
func SplitTopic(base, topic string) (string, bool) {
	if base == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(topic, base+Separator)
	if !ok || rest == "" {
		return "", false
	}
	return truncate(rest, MaxSubtopicLen), true
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
