package mail

import "strings"

// Template is a transactional email with {{key}} placeholders. One variable
// set renders both the HTML and the plain-text body.
type Template struct {
	Name    string
	Subject string
	HTML    string
	Text    string
}

// Render substitutes {{key}} placeholders from vars. Placeholders with no
// matching variable are left verbatim rather than erroring: a missing
// optional variable must not break the whole message.
func (t Template) Render(vars map[string]string) (subject, html, text string) {
	return substitute(t.Subject, vars), substitute(t.HTML, vars), substitute(t.Text, vars)
}

func substitute(s string, vars map[string]string) string {
	for key, val := range vars {
		s = strings.ReplaceAll(s, "{{"+key+"}}", val)
	}
	return s
}

// InvitationTemplate is sent when an admin invites a new member.
// Required variables: tenantName, inviterName, role, invitationUrl,
// expirationDate, adminEmail, recipientEmail, appName, currentYear.
var InvitationTemplate = Template{
	Name:    "invitation",
	Subject: "You've been invited to join {{tenantName}} on {{appName}}",
	HTML: `<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif; color: #1f2933; max-width: 600px; margin: 0 auto;">
    <h2>Join {{tenantName}} on {{appName}}</h2>
    <p>Hi,</p>
    <p>{{inviterName}} has invited you ({{recipientEmail}}) to join
    <strong>{{tenantName}}</strong> as a <strong>{{role}}</strong>.</p>
    <p style="margin: 24px 0;">
      <a href="{{invitationUrl}}"
         style="background: #2563eb; color: #ffffff; padding: 12px 20px; border-radius: 6px; text-decoration: none;">
        Accept invitation
      </a>
    </p>
    <p>This invitation expires on {{expirationDate}}. If the button does not
    work, paste this link into your browser:</p>
    <p><a href="{{invitationUrl}}">{{invitationUrl}}</a></p>
    <p>Questions? Contact your administrator at {{adminEmail}}.</p>
    <hr style="border: none; border-top: 1px solid #e4e7eb;">
    <p style="color: #7b8794; font-size: 12px;">&copy; {{currentYear}} {{appName}}.
    If you weren't expecting this invitation you can safely ignore this email.</p>
  </body>
</html>`,
	Text: `Join {{tenantName}} on {{appName}}

{{inviterName}} has invited you ({{recipientEmail}}) to join {{tenantName}} as a {{role}}.

Accept the invitation: {{invitationUrl}}

This invitation expires on {{expirationDate}}.

Questions? Contact your administrator at {{adminEmail}}.

(c) {{currentYear}} {{appName}}. If you weren't expecting this invitation you can safely ignore this email.
`,
}

// SetupConfirmationTemplate is sent once a new tenant finishes initial setup.
// Required variables: tenantName, adminName, dashboardUrl, appName,
// adminEmail, currentYear.
var SetupConfirmationTemplate = Template{
	Name:    "setup_confirmation",
	Subject: "{{tenantName}} is ready on {{appName}}",
	HTML: `<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif; color: #1f2933; max-width: 600px; margin: 0 auto;">
    <h2>Welcome to {{appName}}, {{adminName}}!</h2>
    <p><strong>{{tenantName}}</strong> has been set up and you are its first
    administrator.</p>
    <p style="margin: 24px 0;">
      <a href="{{dashboardUrl}}"
         style="background: #2563eb; color: #ffffff; padding: 12px 20px; border-radius: 6px; text-decoration: none;">
        Open your dashboard
      </a>
    </p>
    <p>Next steps: invite your team from the members page and configure your
    record-keeping preferences.</p>
    <hr style="border: none; border-top: 1px solid #e4e7eb;">
    <p style="color: #7b8794; font-size: 12px;">&copy; {{currentYear}} {{appName}}.
    Need help? Reach us at {{adminEmail}}.</p>
  </body>
</html>`,
	Text: `Welcome to {{appName}}, {{adminName}}!

{{tenantName}} has been set up and you are its first administrator.

Open your dashboard: {{dashboardUrl}}

Next steps: invite your team from the members page and configure your record-keeping preferences.

(c) {{currentYear}} {{appName}}. Need help? Reach us at {{adminEmail}}.
`,
}
