package notify

import (
	"fmt"
	"unicode/utf8"

	"github.com/vicosurge/revista-lavanda/internal/domain"
)

// Message is a Slack incoming-webhook payload.
type Message struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks"`
}

type Block struct {
	Type     string `json:"type"`
	Text     *Text  `json:"text,omitempty"`
	Fields   []Text `json:"fields,omitempty"`
	Elements []Text `json:"elements,omitempty"`
}

type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func plain(s string) *Text {
	return &Text{Type: "plain_text", Text: s}
}

func markdown(s string) Text {
	return Text{Type: "mrkdwn", Text: s}
}

func section(s string) Block {
	t := markdown(s)
	return Block{Type: "section", Text: &t}
}

// Labels names the providers in the link lines.
type Labels struct {
	File   string
	Record string
}

var DefaultLabels = Labels{
	File:   "View File in Dropbox",
	Record: "View Submission in Airtable",
}

// Placeholders shown instead of empty submission values.
const (
	MissingName     = "No proporcionado"
	MissingEmail    = "No proporcionado"
	MissingCategory = "No especificado"
	MissingTitle    = "Sin título"
	MissingBio      = "No proporcionada"
	MissingNotes    = "Sin notas adicionales"
)

func orDefault(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}

// SubmissionMessage renders a successful submission.
func SubmissionMessage(sub *domain.Submission, labels Labels, timestamp string) Message {
	f := sub.Fields
	return Message{
		Text: "📝 New Form Submission Received!",
		Blocks: []Block{
			{Type: "header", Text: plain("📝 New Submission")},
			{
				Type: "section",
				Fields: []Text{
					markdown("*Nombre:*\n" + orDefault(f.Get(domain.FieldName), MissingName)),
					markdown("*Email:*\n" + orDefault(f.Get(domain.FieldEmail), MissingEmail)),
					markdown("*Tipo:*\n" + orDefault(f.Get(domain.FieldCategory), MissingCategory)),
					markdown("*Título:*\n" + orDefault(f.Get(domain.FieldTitle), MissingTitle)),
				},
			},
			section("*Biografía:*\n" + orDefault(f.Get(domain.FieldBio), MissingBio)),
			section("*Notas:*\n" + orDefault(f.Get(domain.FieldNotes), MissingNotes)),
			section(fmt.Sprintf("📁 <%s|%s>", sub.File.URL, labels.File)),
			section(fmt.Sprintf("📋 <%s|%s>", sub.Record.URL, labels.Record)),
			{
				Type:     "context",
				Elements: []Text{markdown(fmt.Sprintf("Submission ID: %s | %s", sub.Record.ID, timestamp))},
			},
		},
	}
}

// maxErrorRunes keeps the error section under Slack's 3000 character limit
// for section text, leaving room for the labels and the timestamp.
const maxErrorRunes = 2900

// truncateRunes cuts s to at most n runes, marking the cut with an ellipsis.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// ErrorMessage renders a pipeline failure.
func ErrorMessage(errText, timestamp string) Message {
	errText = truncateRunes(errText, maxErrorRunes)
	return Message{
		Text: "🚨 Form Submission Error",
		Blocks: []Block{
			{Type: "header", Text: plain("🚨 Form Processing Error")},
			section(fmt.Sprintf("*Error:* %s\n*Time:* %s", errText, timestamp)),
		},
	}
}
