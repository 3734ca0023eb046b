package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// Line is one product row in a reminder.
type Line struct {
	Product  string
	Expiry   string
	DaysLeft int
}

const digestHTML = `<h3>Heads up! {{len .Lines}} of your products {{if eq (len .Lines) 1}}is{{else}}are{{end}} expiring soon</h3>
<table cellpadding="6" cellspacing="0" border="1" style="border-collapse:collapse">
  <thead>
    <tr><th align="left">Product</th><th align="left">Expiry date</th><th align="right">Days left</th></tr>
  </thead>
  <tbody>
{{- range .Lines}}
    <tr><td>{{.Product}}</td><td>{{.Expiry}}</td><td align="right">{{.DaysLeft}}</td></tr>
{{- end}}
  </tbody>
</table>
`

const digestText = `Heads up! The following products are expiring soon:
{{range .Lines}}
- {{.Product}}: expires {{.Expiry}} ({{.DaysLeft}} day(s) left)
{{- end}}
`

const singleHTML = `<h3>Heads up! Your <strong>{{.Product}}</strong> is expiring soon</h3>
<p><strong>Expiry Date:</strong> {{.Expiry}}</p>
<p>This product will expire in <strong>{{.DaysLeft}} day(s)</strong>.</p>
`

const singleText = `Heads up! Your {{.Product}} is expiring soon.
Expiry Date: {{.Expiry}}
This product will expire in {{.DaysLeft}} day(s).
`

// Renderer builds reminder messages. Product names are escaped in the HTML
// part.
type Renderer struct {
	digestHTML *htmltemplate.Template
	digestText *texttemplate.Template
	singleHTML *htmltemplate.Template
	singleText *texttemplate.Template
}

func NewRenderer() *Renderer {
	return &Renderer{
		digestHTML: htmltemplate.Must(htmltemplate.New("digest.html").Parse(digestHTML)),
		digestText: texttemplate.Must(texttemplate.New("digest.txt").Parse(digestText)),
		singleHTML: htmltemplate.Must(htmltemplate.New("single.html").Parse(singleHTML)),
		singleText: texttemplate.Must(texttemplate.New("single.txt").Parse(singleText)),
	}
}

// Digest renders one message listing every line for a recipient. A digest
// with a single line uses the single-product wording.
func (r *Renderer) Digest(to string, lines []Line) (Message, error) {
	switch len(lines) {
	case 0:
		return Message{}, fmt.Errorf("%w: digest for %s has no products", ErrInvalidMessage, to)
	case 1:
		return r.Single(to, lines[0])
	}

	data := struct{ Lines []Line }{Lines: lines}

	var h, t bytes.Buffer
	if err := r.digestHTML.Execute(&h, data); err != nil {
		return Message{}, fmt.Errorf("render digest html: %w", err)
	}
	if err := r.digestText.Execute(&t, data); err != nil {
		return Message{}, fmt.Errorf("render digest text: %w", err)
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf("Reminder: %d products expiring soon", len(lines)),
		HTML:    h.String(),
		Text:    t.String(),
	}, nil
}

// Single renders the per-product reminder.
func (r *Renderer) Single(to string, line Line) (Message, error) {
	var h, t bytes.Buffer
	if err := r.singleHTML.Execute(&h, line); err != nil {
		return Message{}, fmt.Errorf("render reminder html: %w", err)
	}
	if err := r.singleText.Execute(&t, line); err != nil {
		return Message{}, fmt.Errorf("render reminder text: %w", err)
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf("Reminder: %s expires in %d day(s)", line.Product, line.DaysLeft),
		HTML:    h.String(),
		Text:    t.String(),
	}, nil
}
