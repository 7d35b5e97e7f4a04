package webhook

// Payload mirrors the provider's webhook envelope. Only the fields the
// engine consumes are mapped; everything else is ignored on decode.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one account-level notification batch.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries the actual value for a subscribed field.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value holds inbound messages and delivery statuses.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

// Contact carries the sender's profile as the provider knows it.
type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

// Message is a single inbound message.
type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Button      *QuickReply  `json:"button,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

// Interactive is a button or list reply.
type Interactive struct {
	Type        string `json:"type"` // button_reply | list_reply
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

// Reply is the selected option of an interactive message.
type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// QuickReply is a template quick-reply button press.
type QuickReply struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// Status is a delivery status update for an outbound message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // sent | delivered | read | failed
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// InboundMessage is the normalized form handed to the service layer.
// Button and list replies surface as ReplyID/ReplyTitle regardless of
// which interactive shape carried them.
type InboundMessage struct {
	ProviderMessageID string
	Sender            string
	ContactName       string
	MessageType       string // text | button | list | unsupported
	Text              string
	ReplyID           string
	ReplyTitle        string
}

// Normalize flattens the provider envelope into inbound messages and
// status updates, resolving contact names by sender.
func (p *Payload) Normalize() (messages []InboundMessage, statuses []Status) {
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, msg := range change.Value.Messages {
				messages = append(messages, normalizeMessage(msg, names[msg.From]))
			}
			statuses = append(statuses, change.Value.Statuses...)
		}
	}
	return messages, statuses
}

func normalizeMessage(msg Message, contactName string) InboundMessage {
	inbound := InboundMessage{
		ProviderMessageID: msg.ID,
		Sender:            msg.From,
		ContactName:       contactName,
	}

	switch {
	case msg.Type == "text" && msg.Text != nil:
		inbound.MessageType = "text"
		inbound.Text = msg.Text.Body
	case msg.Type == "interactive" && msg.Interactive != nil:
		switch {
		case msg.Interactive.ButtonReply != nil:
			inbound.MessageType = "button"
			inbound.ReplyID = msg.Interactive.ButtonReply.ID
			inbound.ReplyTitle = msg.Interactive.ButtonReply.Title
			inbound.Text = msg.Interactive.ButtonReply.Title
		case msg.Interactive.ListReply != nil:
			inbound.MessageType = "list"
			inbound.ReplyID = msg.Interactive.ListReply.ID
			inbound.ReplyTitle = msg.Interactive.ListReply.Title
			inbound.Text = msg.Interactive.ListReply.Title
		default:
			inbound.MessageType = "unsupported"
		}
	case msg.Type == "button" && msg.Button != nil:
		inbound.MessageType = "button"
		inbound.ReplyID = msg.Button.Payload
		inbound.ReplyTitle = msg.Button.Text
		inbound.Text = msg.Button.Text
	default:
		inbound.MessageType = "unsupported"
	}

	return inbound
}
