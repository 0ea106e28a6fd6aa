package graph

import (
	"encoding/base64"

	"github.com/shineum/easysmtp/internal/email"
)

// sendMailRequest is the body of the sendMail call.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject       string            `json:"subject"`
	Body          messageBody       `json:"body"`
	From          *recipient        `json:"from,omitempty"`
	ToRecipients  []recipient       `json:"toRecipients"`
	CcRecipients  []recipient       `json:"ccRecipients,omitempty"`
	BccRecipients []recipient       `json:"bccRecipients,omitempty"`
	ReplyTo       []recipient       `json:"replyTo,omitempty"`
	Attachments   []graphAttachment `json:"attachments,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func recipients(addrs []string) []recipient {
	out := make([]recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, recipient{EmailAddress: emailAddress{Address: a}})
	}
	return out
}

// buildSendMailRequest converts a resolved message into a sendMail body.
func buildSendMailRequest(msg *email.Email, saveToSent bool) *sendMailRequest {
	body := messageBody{ContentType: "text", Content: msg.TextBody}
	if msg.HtmlBody != "" {
		body = messageBody{ContentType: "html", Content: msg.HtmlBody}
	}

	m := sendMailMessage{
		Subject:       msg.Subject,
		Body:          body,
		ToRecipients:  recipients(msg.To),
		CcRecipients:  recipients(msg.Cc),
		BccRecipients: recipients(msg.Bcc),
	}
	if msg.From.Email != "" {
		m.From = &recipient{EmailAddress: emailAddress{Address: msg.From.Email, Name: msg.From.Name}}
	}
	for _, r := range msg.ReplyTo {
		m.ReplyTo = append(m.ReplyTo, recipient{EmailAddress: emailAddress{Address: r.Email, Name: r.Name}})
	}
	for _, att := range msg.Attachments {
		m.Attachments = append(m.Attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  att.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}
	return &sendMailRequest{Message: m, SaveToSentItems: saveToSent}
}
