package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/samber/lo"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/orders"
)

const shopName = "BloomBox"

type Message struct {
	Subject string
	Text    string
	HTML    string
}

type itemView struct {
	Name     string
	Quantity int
	Total    string
}

type orderView struct {
	Shop     string
	Number   string
	Customer string
	Phone    string
	Status   string
	Items    []itemView
	Subtotal string
	Delivery string
	Discount string
	Charges  string
	Total    string
	Payment  string
	Address  string
	ETA      string
	Note     string
}

func viewOf(o models.Order) orderView {
	v := orderView{
		Shop:     shopName,
		Number:   o.OrderNumber,
		Customer: o.CustomerName,
		Phone:    o.CustomerPhone,
		Status:   statusLabel(o.Status),
		Subtotal: rupees(o.Subtotal.StringFixed(2)),
		Delivery: rupees(o.DeliveryCharge.StringFixed(2)),
		Charges:  rupees(o.PaymentCharges.StringFixed(2)),
		Total:    rupees(o.Total.StringFixed(2)),
		Payment:  string(o.PaymentMethod),
		Address:  o.DeliveryAddress,
		Items: lo.Map(o.Items, func(it models.OrderItem, _ int) itemView {
			return itemView{Name: it.ProductName, Quantity: it.Quantity, Total: rupees(it.TotalPrice.StringFixed(2))}
		}),
	}
	if o.DiscountAmount.IsPositive() {
		v.Discount = rupees(o.DiscountAmount.StringFixed(2))
	}
	if o.EstimatedDeliveryDate != nil {
		v.ETA = o.EstimatedDeliveryDate.Format("Mon, 02 Jan 2006")
	}
	return v
}

func rupees(s string) string { return "Rs." + s }

func statusLabel(s models.OrderStatus) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

var textTemplates = template.Must(template.New("text").Parse(`
{{define "order_placed"}}Hi {{.Customer}}, thank you for shopping at {{.Shop}}! Your order {{.Number}} for {{.Total}} is confirmed.
{{range .Items}}- {{.Name}} x{{.Quantity}}: {{.Total}}
{{end}}{{if .ETA}}Expected delivery: {{.ETA}}.
{{end}}We will keep you posted.{{end}}

{{define "status_update"}}Hi {{.Customer}}, your {{.Shop}} order {{.Number}} is now {{.Status}}.{{if .Note}} {{.Note}}{{end}}{{end}}

{{define "cancelled"}}Hi {{.Customer}}, your {{.Shop}} order {{.Number}} has been cancelled.{{if .Note}} {{.Note}}.{{end}} Reply to this message if this was not you.{{end}}

{{define "admin_new_order"}}New order {{.Number}}: {{.Total}} ({{.Payment}}) from {{.Customer}} {{.Phone}}. {{len .Items}} item(s).{{end}}

{{define "otp"}}{{.Code}} is your {{.Shop}} login code. It expires in {{.Minutes}} minutes. Do not share it with anyone.{{end}}
`))

var htmlTemplates = htmltemplate.Must(htmltemplate.New("html").Parse(`
{{define "order_placed"}}<!doctype html>
<html><body style="font-family:sans-serif">
<h2>Thank you, {{.Customer}}!</h2>
<p>Your order <strong>{{.Number}}</strong> has been placed.</p>
<table cellpadding="4">
{{range .Items}}<tr><td>{{.Name}}</td><td>x{{.Quantity}}</td><td align="right">{{.Total}}</td></tr>
{{end}}<tr><td colspan="2">Subtotal</td><td align="right">{{.Subtotal}}</td></tr>
<tr><td colspan="2">Delivery</td><td align="right">{{.Delivery}}</td></tr>
{{if .Discount}}<tr><td colspan="2">Discount</td><td align="right">-{{.Discount}}</td></tr>
{{end}}<tr><td colspan="2">Payment charges</td><td align="right">{{.Charges}}</td></tr>
<tr><td colspan="2"><strong>Total</strong></td><td align="right"><strong>{{.Total}}</strong></td></tr>
</table>
<p>Delivering to: {{.Address}}</p>
{{if .ETA}}<p>Expected delivery: {{.ETA}}</p>{{end}}
<p>{{.Shop}}</p>
</body></html>{{end}}

{{define "status_update"}}<!doctype html>
<html><body style="font-family:sans-serif">
<p>Hi {{.Customer}},</p>
<p>Your order <strong>{{.Number}}</strong> is now <strong>{{.Status}}</strong>.</p>
{{if .Note}}<p>{{.Note}}</p>{{end}}
<p>{{.Shop}}</p>
</body></html>{{end}}
`))

func renderText(name string, data any) (string, error) {
	var b bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

func renderHTML(name string, data any) (string, error) {
	var b bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s html: %w", name, err)
	}
	return b.String(), nil
}

func OrderPlacedMessage(o models.Order) (Message, error) {
	v := viewOf(o)
	text, err := renderText("order_placed", v)
	if err != nil {
		return Message{}, err
	}
	html, err := renderHTML("order_placed", v)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: fmt.Sprintf("%s order %s confirmed", shopName, o.OrderNumber), Text: text, HTML: html}, nil
}

// StatusMessage renders the customer notice for a status change. A
// cancellation gets its own wording.
func StatusMessage(c orders.Change) (Message, error) {
	v := viewOf(c.Order)
	v.Status = statusLabel(c.To)
	v.Note = c.Note

	name := "status_update"
	if c.To == models.OrderStatusCancelled {
		name = "cancelled"
	}
	text, err := renderText(name, v)
	if err != nil {
		return Message{}, err
	}
	html, err := renderHTML("status_update", v)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: fmt.Sprintf("%s order %s is %s", shopName, c.Order.OrderNumber, v.Status), Text: text, HTML: html}, nil
}

func AdminOrderMessage(o models.Order) (string, error) {
	return renderText("admin_new_order", viewOf(o))
}

func OTPMessage(code string, ttl time.Duration) (string, error) {
	return renderText("otp", struct {
		Shop    string
		Code    string
		Minutes int
	}{shopName, code, int(ttl.Minutes())})
}
