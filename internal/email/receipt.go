package email

import (
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/verdantclimate/verdant-backend/internal/pricing"
)

// Receipt carries everything the receipt template renders.
type Receipt struct {
	OrderReference string
	BuyerName      string
	BuyerEmail     string
	Currency       string
	Lines          []pricing.LineItem
	TotalCents     int64
	Locale         string
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #1d3a2a;">
  <h1>Thank you for offsetting with Verdant Climate</h1>
  <p>Your order <strong>{{.OrderReference}}</strong> is confirmed. The credits
  below will be retired on your behalf and cannot be resold.</p>
  <table width="100%" cellpadding="6" style="border-collapse: collapse;">
    <tr style="border-bottom: 1px solid #1d3a2a;">
      <th align="left">Item</th>
      <th align="right">Qty</th>
      <th align="right">Subtotal</th>
    </tr>
    {{range .Rows}}
    <tr>
      <td>{{.Name}}</td>
      <td align="right">{{.Quantity}}</td>
      <td align="right">{{.Subtotal}}</td>
    </tr>
    {{end}}
    <tr style="border-top: 2px solid #1d3a2a;">
      <td><strong>Total</strong></td>
      <td></td>
      <td align="right"><strong>{{.Total}}</strong></td>
    </tr>
  </table>
  <p>Billed to: {{if .BuyerName}}{{.BuyerName}} &lt;{{.BuyerEmail}}&gt;{{else}}{{.BuyerEmail}}{{end}}</p>
</body>
</html>`))

type receiptRow struct {
	Name     string
	Quantity int64
	Subtotal string
}

type receiptView struct {
	OrderReference string
	BuyerName      string
	BuyerEmail     string
	Rows           []receiptRow
	Total          string
}

// Render produces the receipt HTML.
func (r Receipt) Render() (string, error) {
	tag := resolveLocale(r.Locale)
	view := receiptView{
		OrderReference: r.OrderReference,
		BuyerName:      r.BuyerName,
		BuyerEmail:     r.BuyerEmail,
		Total:          FormatAmount(r.TotalCents, r.Currency, tag),
	}
	for _, line := range r.Lines {
		view.Rows = append(view.Rows, receiptRow{
			Name:     line.Name,
			Quantity: line.Quantity,
			Subtotal: FormatAmount(line.Total(), r.Currency, tag),
		})
	}

	var sb strings.Builder
	if err := receiptTemplate.Execute(&sb, view); err != nil {
		return "", fmt.Errorf("rendering receipt: %w", err)
	}
	return sb.String(), nil
}

// FormatAmount formats cents as a major-unit amount with two decimals and
// locale-appropriate separators, suffixed with the upper-cased currency code.
func FormatAmount(cents int64, currency string, tag language.Tag) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("%.2f %s", float64(cents)/100, strings.ToUpper(currency))
}

func resolveLocale(locale string) language.Tag {
	if locale == "" {
		return language.English
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}
