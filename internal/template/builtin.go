package template

// layout wraps a body fragment in the shared storefront email chrome.
func layout(body string) string {
	return `<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background:#f6f5f2;font-family:Helvetica,Arial,sans-serif;color:#1f1f1f;">
<table width="100%" cellpadding="0" cellspacing="0"><tr><td align="center">
<table width="600" cellpadding="24" cellspacing="0" style="background:#ffffff;">
<tr><td style="border-bottom:1px solid #e4e1da;"><h1 style="margin:0;font-size:22px;">{{storeName}}</h1></td></tr>
<tr><td>` + body + `</td></tr>
<tr><td style="font-size:12px;color:#8a867c;border-top:1px solid #e4e1da;">
You are receiving this email because of activity on your {{storeName}} account.
Questions? Write to {{supportEmail}}.
</td></tr>
</table>
</td></tr></table>
</body>
</html>`
}

// builtinDefinitions is the storefront's template table.
var builtinDefinitions = []Definition{
	{
		Key:     OrderConfirmation,
		Subject: "Order Confirmation #{{orderId}}",
		HTML: layout(`<h2>Thank you for your order, {{customerName}}!</h2>
<p>Your order <strong>#{{orderId}}</strong> was placed on {{orderDate}}.</p>
<p>{{orderItems}}</p>
<p>Total: <strong>{{orderTotal}}</strong></p>
<p>Your download links will be available in your account once payment clears.</p>`),
		Text: `Thank you for your order, {{customerName}}!

Order #{{orderId}} placed on {{orderDate}}.
{{orderItems}}
Total: {{orderTotal}}

Your download links will be available in your account once payment clears.`,
	},
	{
		Key:     Welcome,
		Subject: "Welcome to {{storeName}}, {{customerName}}",
		HTML: layout(`<h2>Welcome, {{customerName}}!</h2>
<p>Your account is ready. Browse new releases from independent artists and save favourites to your collection.</p>
<p><a href="{{shopUrl}}">Start exploring</a></p>`),
		Text: `Welcome, {{customerName}}!

Your account is ready. Start exploring: {{shopUrl}}`,
	},
	{
		Key:     PasswordReset,
		Subject: "Reset your {{storeName}} password",
		HTML: layout(`<h2>Password reset</h2>
<p>Hi {{customerName}}, we received a request to reset your password.</p>
<p><a href="{{resetUrl}}">Choose a new password</a></p>
<p>This link expires in {{expiresIn}}. If you did not ask for a reset you can ignore this email.</p>`),
		Text: `Hi {{customerName}},

Reset your password here: {{resetUrl}}
This link expires in {{expiresIn}}. If you did not ask for a reset you can ignore this email.`,
	},
	{
		Key:     ReturnRequest,
		Subject: "Return request received for order #{{orderId}}",
		HTML: layout(`<h2>We received your return request</h2>
<p>Hi {{customerName}}, your request for order <strong>#{{orderId}}</strong> has been logged.</p>
<p>Reason: {{reason}}</p>
<p>Reference: {{returnId}}. We will reply within {{responseTime}}.</p>`),
		Text: `Hi {{customerName}},

Your return request for order #{{orderId}} has been logged.
Reason: {{reason}}
Reference: {{returnId}}. We will reply within {{responseTime}}.`,
	},
	{
		Key:     OrderShipped,
		Subject: "Your order #{{orderId}} has shipped",
		HTML: layout(`<h2>Your prints are on the way</h2>
<p>Hi {{customerName}}, order <strong>#{{orderId}}</strong> shipped with {{carrier}}.</p>
<p>Tracking number: <a href="{{trackingUrl}}">{{trackingNumber}}</a></p>`),
		Text: `Hi {{customerName}},

Order #{{orderId}} shipped with {{carrier}}.
Tracking number: {{trackingNumber}} ({{trackingUrl}})`,
	},
	{
		Key:     OrderDelivered,
		Subject: "Order #{{orderId}} delivered",
		HTML: layout(`<h2>Delivered</h2>
<p>Hi {{customerName}}, order <strong>#{{orderId}}</strong> was delivered on {{deliveryDate}}.</p>
<p>Enjoying it? <a href="{{reviewUrl}}">Leave the artist a review</a>.</p>`),
		Text: `Hi {{customerName}},

Order #{{orderId}} was delivered on {{deliveryDate}}.
Leave the artist a review: {{reviewUrl}}`,
	},
	{
		Key:     ContactForm,
		Subject: "New contact message from {{name}}",
		HTML: layout(`<h2>New contact form submission</h2>
<p><strong>From:</strong> {{name}} &lt;{{email}}&gt;</p>
<p><strong>Subject:</strong> {{subject}}</p>
<p>{{message}}</p>`),
		Text: `New contact form submission

From: {{name}} <{{email}}>
Subject: {{subject}}

{{message}}`,
	},
	{
		Key:     Newsletter,
		Subject: "{{title}}",
		HTML: layout(`<h2>{{title}}</h2>
{{content}}
<p style="font-size:12px;"><a href="{{unsubscribeUrl}}">Unsubscribe</a></p>`),
		Text: `{{title}}

{{content}}

Unsubscribe: {{unsubscribeUrl}}`,
	},
	{
		Key:     ArtistPayout,
		Subject: "Payout of {{amount}} sent",
		HTML: layout(`<h2>Your payout is on its way</h2>
<p>Hi {{artistName}}, we sent <strong>{{amount}}</strong> for sales between {{periodStart}} and {{periodEnd}}.</p>
<p>Payout reference: {{payoutId}}</p>`),
		Text: `Hi {{artistName}},

We sent {{amount}} for sales between {{periodStart}} and {{periodEnd}}.
Payout reference: {{payoutId}}`,
	},
}

// Builtin returns the registry of storefront templates.
func Builtin() *Registry {
	r, err := NewRegistry(builtinDefinitions...)
	if err != nil {
		panic(err)
	}
	return r
}
