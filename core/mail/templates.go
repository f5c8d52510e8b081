package mail

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const shareTemplate = `Hello {{.RecipientName}},

**{{.SharerName}}** shared the {{.Kind}} **{{.ItemName}}** with you.

[Open {{.ItemName}}]({{.Link}})
`

const inviteTemplate = `Hello,

**{{.SharerName}}** invited you to view the {{.Kind}} **{{.ItemName}}**.

Create an account to open it: [Sign up]({{.Link}})
`

var (
	shareTpl  = template.Must(template.New("share").Parse(shareTemplate))
	inviteTpl = template.Must(template.New("invite").Parse(inviteTemplate))
	markdown  = goldmark.New(
		goldmark.WithExtensions(extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
)

type ShareNotice struct {
	RecipientName string
	SharerName    string
	Kind          string
	ItemName      string
	Link          string
}

func RenderShare(n ShareNotice) (string, error) {
	return render(shareTpl, n)
}

func RenderInvite(n ShareNotice) (string, error) {
	return render(inviteTpl, n)
}

func render(tpl *template.Template, data any) (string, error) {
	var md bytes.Buffer
	if err := tpl.Execute(&md, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", tpl.Name(), err)
	}
	var out bytes.Buffer
	if err := markdown.Convert(md.Bytes(), &out); err != nil {
		return "", fmt.Errorf("markdown %s: %w", tpl.Name(), err)
	}
	return out.String(), nil
}
