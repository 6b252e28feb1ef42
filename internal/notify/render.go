// Package notify отправляет покупателю уведомление о предложенных заменах.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/mmeshcher/order-replacement/internal/model"
)

const emailTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="background: {{.Color}}; color: #fff; padding: 16px;">
    <h2 style="margin: 0;">{{.Title}}</h2>
  </div>
  <p>Hi {{.CustomerName}},</p>
  <p>{{.Content}}</p>
  <table style="border-collapse: collapse; width: 100%;">
    <thead>
      <tr>
        <th style="border: 1px solid #ddd; padding: 8px;">Order ID</th>
        <th style="border: 1px solid #ddd; padding: 8px;">Original Product</th>
        <th style="border: 1px solid #ddd; padding: 8px;">Original Amount</th>
        <th style="border: 1px solid #ddd; padding: 8px;">Replacement Product</th>
        <th style="border: 1px solid #ddd; padding: 8px;">Total Replacement Amount</th>
        <th style="border: 1px solid #ddd; padding: 8px;">Balance</th>
      </tr>
    </thead>
    <tbody>
      {{- range .Rows}}
      <tr>
        <td style="border: 1px solid #ddd; padding: 8px;">{{$.OrderName}}</td>
        <td style="border: 1px solid #ddd; padding: 8px;">{{.Original}} x {{.Quantity}}</td>
        <td style="border: 1px solid #ddd; padding: 8px;">{{.OriginalAmount}}</td>
        <td style="border: 1px solid #ddd; padding: 8px;">{{.Replacement}} x {{.ReplacementQuantity}}</td>
        <td style="border: 1px solid #ddd; padding: 8px;">{{.ReplacementAmount}}</td>
        <td style="border: 1px solid #ddd; padding: 8px;">{{.Balance}}</td>
      </tr>
      {{- end}}
    </tbody>
  </table>
  {{- if .ConfirmLink}}
  <p style="margin-top: 24px;">
    <a href="{{.ConfirmLink}}" style="background: {{.Color}}; color: #fff; padding: 10px 20px; text-decoration: none;">Review replacements</a>
  </p>
  {{- end}}
  <p>The offer is valid for {{.ExpirationHours}} hours.</p>
  <hr>
  <p style="font-size: 12px; color: #777;">
    {{.CompanyName}}{{if .CompanyAddress}} | {{.CompanyAddress}}{{end}}<br>
    {{if .ContactNo}}Phone: {{.ContactNo}}{{end}}{{if .WhatsappNo}} | WhatsApp: {{.WhatsappNo}}{{end}}<br>
    {{if .CopyrightYear}}&copy; {{.CopyrightYear}} {{.CompanyName}}{{end}}
  </p>
</body>
</html>`

var emailTmpl = template.Must(template.New("email").Parse(emailTemplate))

type emailRow struct {
	Original            string
	Quantity            int
	OriginalAmount      string
	Replacement         string
	ReplacementQuantity int
	ReplacementAmount   string
	Balance             string
}

type emailView struct {
	Title           string
	Content         string
	Color           template.CSS
	CustomerName    string
	OrderName       string
	Rows            []emailRow
	ConfirmLink     string
	ExpirationHours int
	CompanyName     string
	CompanyAddress  string
	ContactNo       string
	WhatsappNo      string
	CopyrightYear   string
}

// Message описывает готовое к отправке письмо.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Subject возвращает тему письма для заказа.
func Subject(n model.Notification) string {
	if n.Store.EmailTitle != "" {
		return fmt.Sprintf("%s #%s", n.Store.EmailTitle, n.OrderName)
	}
	return fmt.Sprintf("Replacement proposal for order #%s", n.OrderName)
}

// ConfirmLink формирует ссылку на страницу ответа покупателя.
func ConfirmLink(base, orderName string) string {
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "OrderID=" + url.QueryEscape(orderName)
}

// Render собирает письмо из уведомления.
func Render(n model.Notification) (Message, error) {
	view := emailView{
		Title:           n.Store.EmailTitle,
		Content:         n.Store.EmailContent,
		Color:           template.CSS(n.Store.EmailColor),
		CustomerName:    n.Customer.FullName(),
		OrderName:       n.OrderName,
		ConfirmLink:     ConfirmLink(n.Store.ConfirmURL, n.OrderName),
		ExpirationHours: n.Store.ExpirationHours,
		CompanyName:     n.Store.CompanyName,
		CompanyAddress:  n.Store.CompanyAddress,
		ContactNo:       n.Store.ContactNo,
		WhatsappNo:      n.Store.WhatsappNo,
		CopyrightYear:   n.Store.CopyrightYear,
	}
	if view.Title == "" {
		view.Title = "Replacement proposal"
	}
	if !isHexColor(n.Store.EmailColor) {
		view.Color = "#000000"
	}

	for _, rec := range n.Items {
		view.Rows = append(view.Rows, emailRow{
			Original:            rec.OriginalTitle,
			Quantity:            rec.Quantity,
			OriginalAmount:      formatMoney(rec.TotalPrice.StringFixed(2), rec.Currency),
			Replacement:         rec.ReplacementTitle,
			ReplacementQuantity: rec.ReplacementQuantity,
			ReplacementAmount:   formatMoney(rec.TotalReplacementAmount.StringFixed(2), rec.Currency),
			Balance:             formatMoney(rec.Balance.StringFixed(2), rec.Currency),
		})
	}

	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, view); err != nil {
		return Message{}, fmt.Errorf("render email: %w", err)
	}

	return Message{
		To:      n.Customer.Email,
		Subject: Subject(n),
		HTML:    buf.String(),
	}, nil
}

func formatMoney(amount, currency string) string {
	if currency == "" {
		return amount
	}
	return currency + " " + amount
}

func isHexColor(s string) bool {
	if len(s) != 4 && len(s) != 7 {
		return false
	}
	if s[0] != '#' {
		return false
	}
	for _, ch := range s[1:] {
		switch {
		case ch >= '0' && ch <= '9', ch >= 'a' && ch <= 'f', ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}
