package signal

// Wire types for the signal-cli daemon event stream. One decoded frame may
// carry at most one envelope; an envelope carries independent optional
// facets (data message, edit, reaction inside the data message, sync echo).

// Receive is one decoded "receive" frame from the event stream.
type Receive struct {
	Envelope  *Envelope     `json:"envelope"`
	Account   string        `json:"account"`
	Exception *ReceiveError `json:"exception"`
}

// ReceiveError is a daemon-side exception embedded in an otherwise valid frame.
type ReceiveError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// Envelope is the top-level structure of a received event.
type Envelope struct {
	Source       string `json:"source"`
	SourceNumber string `json:"sourceNumber"`
	SourceUUID   string `json:"sourceUuid"`
	SourceName   string `json:"sourceName"`
	SourceDevice int    `json:"sourceDevice"`
	Timestamp    int64  `json:"timestamp"`

	DataMessage    *DataMessage    `json:"dataMessage"`
	EditMessage    *EditMessage    `json:"editMessage"`
	SyncMessage    *SyncMessage    `json:"syncMessage"`
	TypingMessage  *TypingMessage  `json:"typingMessage"`
	ReceiptMessage *ReceiptMessage `json:"receiptMessage"`
}

// DataMessage carries conversational content and/or a reaction.
type DataMessage struct {
	Timestamp   int64        `json:"timestamp"`
	Message     string       `json:"message"`
	GroupInfo   *GroupInfo   `json:"groupInfo"`
	Quote       *Quote       `json:"quote"`
	Reaction    *Reaction    `json:"reaction"`
	Attachments []Attachment `json:"attachments"`
	Mentions    []Mention    `json:"mentions"`
}

// EditMessage replaces the content of a previously sent message.
type EditMessage struct {
	TargetSentTimestamp int64        `json:"targetSentTimestamp"`
	DataMessage         *DataMessage `json:"dataMessage"`
}

// SyncMessage is an echo of the account's own activity from another device.
// Always ignored before identity resolution.
type SyncMessage struct {
	SentMessage *SentMessage `json:"sentMessage"`
}

// SentMessage is the payload of a sync echo.
type SentMessage struct {
	Destination string     `json:"destination"`
	Timestamp   int64      `json:"timestamp"`
	Message     string     `json:"message"`
	GroupInfo   *GroupInfo `json:"groupInfo"`
}

// TypingMessage is a typing indicator. Ignored.
type TypingMessage struct {
	Action string `json:"action"`
}

// ReceiptMessage is a delivery/read receipt. Ignored.
type ReceiptMessage struct {
	When       int64   `json:"when"`
	IsDelivery bool    `json:"isDelivery"`
	IsRead     bool    `json:"isRead"`
	Timestamps []int64 `json:"timestamps"`
}

// GroupInfo identifies the group a message or reaction occurred in.
type GroupInfo struct {
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
	Type      string `json:"type"`
}

// Quote references a replied-to message.
type Quote struct {
	ID         int64  `json:"id"`
	Author     string `json:"author"`
	AuthorUUID string `json:"authorUuid"`
	Text       string `json:"text"`
}

// Reaction reports an emoji reaction to an earlier message. The reacted-to
// author may be reported under several identifier fields at once; all of
// them are match candidates (see reactionTargets).
type Reaction struct {
	Emoji               string `json:"emoji"`
	TargetAuthor        string `json:"targetAuthor"`
	TargetAuthorNumber  string `json:"targetAuthorNumber"`
	TargetAuthorUUID    string `json:"targetAuthorUuid"`
	TargetSentTimestamp int64  `json:"targetSentTimestamp"`
	IsRemove            bool   `json:"isRemove"`
}

// Attachment describes an inbound media attachment.
type Attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}

// Mention marks a mentioned account inside a group message body.
type Mention struct {
	Start  int    `json:"start"`
	Length int    `json:"length"`
	Name   string `json:"name"`
	Number string `json:"number"`
	UUID   string `json:"uuid"`
}
