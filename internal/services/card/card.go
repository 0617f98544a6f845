// Package card renders the carnet document attached to delivery emails.
package card

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
)

// Profile is the user-facing data printed on the card.
type Profile struct {
	FullName string
	Username string
	Email    string
	Photo    []byte
}

// Renderer turns a profile and its QR payload into an attachable document.
type Renderer interface {
	Render(profile Profile, qrPayload string) (filename string, content []byte, contentType string, err error)
}

// cardTemplate is deliberately plain; branding is a deployment concern.
const cardTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Carnet: {{.FullName}}</title></head>
<body>
<div class="carnet">
  <h1>{{.FullName}}</h1>
  <p class="username">@{{.Username}}</p>
  <p class="email">{{.Email}}</p>
  {{if .PhotoData}}<img class="photo" src="data:image/jpeg;base64,{{.PhotoData}}" alt="photo">{{end}}
  <p class="qr-payload">{{.QRPayload}}</p>
</div>
</body>
</html>
`

// HTMLRenderer renders the carnet as a standalone HTML document with the QR
// payload embedded as text. Rasterising the payload into a QR image is left
// to the client displaying or printing the card.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer creates the default card renderer.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		tmpl: template.Must(template.New("carnet").Parse(cardTemplate)),
	}
}

// Render produces the card document for the profile.
func (r *HTMLRenderer) Render(profile Profile, qrPayload string) (string, []byte, string, error) {
	data := struct {
		FullName  string
		Username  string
		Email     string
		PhotoData string
		QRPayload string
	}{
		FullName:  profile.FullName,
		Username:  profile.Username,
		Email:     profile.Email,
		QRPayload: qrPayload,
	}
	if len(profile.Photo) > 0 {
		data.PhotoData = base64.StdEncoding.EncodeToString(profile.Photo)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", nil, "", fmt.Errorf("rendering carnet: %w", err)
	}

	filename := fmt.Sprintf("carnet-%s.html", profile.Username)
	return filename, buf.Bytes(), "text/html; charset=utf-8", nil
}
