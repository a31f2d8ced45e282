package backend

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// UnexpectedFormatText is shown when a reply matches none of the known shapes.
const UnexpectedFormatText = "Received response but format was unexpected."

// ReplyKind tags the variant held by a Reply.
type ReplyKind int

const (
	ReplyUnrecognized ReplyKind = iota
	ReplyText
	ReplyError
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyText:
		return "text"
	case ReplyError:
		return "error"
	default:
		return "unrecognized"
	}
}

// Reply is the decoded assistant answer. Text holds the reply for ReplyText
// and the backend's error text for ReplyError. Raw keeps the body as received.
type Reply struct {
	Kind ReplyKind
	Text string
	Raw  string
}

// Display returns the line to show in the transcript for this reply.
func (r Reply) Display() string {
	switch r.Kind {
	case ReplyText:
		return r.Text
	case ReplyError:
		return "Error: " + r.Text
	default:
		return UnexpectedFormatText
	}
}

type shapeMatcher func(root gjson.Result) (Reply, bool)

// replyShapes is consulted in order; the first match wins.
var replyShapes = []shapeMatcher{
	matchMessageList,
	matchReplyObject,
	matchScalarReply,
	matchErrorField,
}

// objectReplyFields lists the object keys that may carry the reply text.
var objectReplyFields = []string{"assistant_message", "message", "content"}

// conversationIDPaths lists where the create response may put the id.
var conversationIDPaths = []string{"chat.id", "id"}

// DecodeReply classifies a message response body.
func DecodeReply(body []byte) Reply {
	raw := string(body)
	if !gjson.ValidBytes(body) {
		return Reply{Kind: ReplyUnrecognized, Raw: raw}
	}
	root := gjson.ParseBytes(body)
	for _, match := range replyShapes {
		if reply, ok := match(root); ok {
			reply.Raw = raw
			return reply
		}
	}
	return Reply{Kind: ReplyUnrecognized, Raw: raw}
}

// ExtractConversationID returns the first truthy id among the known paths.
func ExtractConversationID(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	for _, path := range conversationIDPaths {
		if v := gjson.GetBytes(body, path); truthy(v) {
			return textOf(v), true
		}
	}
	return "", false
}

func matchMessageList(root gjson.Result) (Reply, bool) {
	resp := root.Get("response")
	if !resp.IsArray() {
		return Reply{}, false
	}
	items := resp.Array()
	if len(items) == 0 {
		return Reply{Kind: ReplyUnrecognized}, true
	}
	content := items[len(items)-1].Get("content")
	if !truthy(content) {
		return Reply{Kind: ReplyUnrecognized}, true
	}
	return Reply{Kind: ReplyText, Text: textOf(content)}, true
}

func matchReplyObject(root gjson.Result) (Reply, bool) {
	resp := root.Get("response")
	if !resp.IsObject() {
		return Reply{}, false
	}
	for _, field := range objectReplyFields {
		if v := resp.Get(field); truthy(v) {
			return Reply{Kind: ReplyText, Text: textOf(v)}, true
		}
	}
	return Reply{Kind: ReplyText, Text: compact(resp.Raw)}, true
}

func matchScalarReply(root gjson.Result) (Reply, bool) {
	resp := root.Get("response")
	if !truthy(resp) {
		return Reply{}, false
	}
	return Reply{Kind: ReplyText, Text: textOf(resp)}, true
}

func matchErrorField(root gjson.Result) (Reply, bool) {
	v := root.Get("error")
	if !truthy(v) {
		return Reply{}, false
	}
	return Reply{Kind: ReplyError, Text: textOf(v)}, true
}

// truthy mirrors loose JSON truthiness: missing, null, false, 0 and ""
// are all false; any array or object is true.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return v.Float() != 0
	case gjson.String:
		return v.Str != ""
	case gjson.True:
		return true
	default:
		return v.IsArray() || v.IsObject()
	}
}

// textOf renders strings as-is and anything else as compact JSON.
func textOf(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return compact(v.Raw)
}

func compact(raw string) string {
	return string(pretty.Ugly([]byte(raw)))
}
