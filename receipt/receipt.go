/*
Package receipt renders transfer receipts.

PURPOSE:
  Produces the printable record handed to whoever carried the cash between
  registers. Rendering happens after the transfer's transaction commits;
  a rendering failure is reported as a warning on the transfer result and
  never affects the ledger.

FORMAT:
  Plain text, fixed layout, one line per moved order. The reference on the
  receipt matches the reference stored on both transfer legs and the audit
  record, so a paper receipt can always be traced back to the ledger rows.
*/
package receipt

import (
	"bytes"
	"text/template"

	"github.com/atelier/cashbox/ledger"
)

const transferTemplate = `CASH TRANSFER RECEIPT
=====================
Reference:   {{.Reference}}
Date:        {{.CompletedAt.Format "2006-01-02 15:04:05 MST"}}
From:        {{.Origin}}
To:          {{.Destination}}
Amount:      {{.Amount.StringFixed 2}}
Operator:    {{.Actor}}
{{- if .Notes}}
Notes:       {{.Notes}}
{{- end}}

Orders moved ({{len .Orders}}):
{{- range .Orders}}
  {{.ID}}  {{.CreatedAt.Format "2006-01-02"}}  {{.Amount.StringFixed 2}}
{{- end}}
`

// Generator implements ledger.ReceiptGenerator as a text renderer.
type Generator struct {
	tmpl *template.Template
}

func NewGenerator() *Generator {
	return &Generator{
		tmpl: template.Must(template.New("transfer").Parse(transferTemplate)),
	}
}

// Render produces the receipt document for a completed transfer.
func (g *Generator) Render(details ledger.TransferDetails) ([]byte, error) {
	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, details); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
