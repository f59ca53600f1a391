package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplateRender(t *testing.T) {
	tpl := Template{
		Name:    "test",
		Subject: "Hello {{name}}",
		HTML:    "<p>Welcome to {{tenantName}}, {{name}}.</p>",
		Text:    "Welcome to {{tenantName}}, {{name}}.",
	}

	subject, html, text := tpl.Render(map[string]string{
		"name":       "Dana",
		"tenantName": "Northside High",
	})

	require.Equal(t, "Hello Dana", subject)
	require.Equal(t, "<p>Welcome to Northside High, Dana.</p>", html)
	require.Equal(t, "Welcome to Northside High, Dana.", text)
}

func TestTemplateRenderUnmatchedPlaceholderLeftVerbatim(t *testing.T) {
	tpl := Template{
		Subject: "{{known}} and {{unknown}}",
		HTML:    "{{known}} / {{unknown}}",
		Text:    "{{known}} / {{unknown}}",
	}

	subject, html, text := tpl.Render(map[string]string{"known": "yes"})

	require.Equal(t, "yes and {{unknown}}", subject)
	require.Equal(t, "yes / {{unknown}}", html)
	require.Equal(t, "yes / {{unknown}}", text)
}

func TestTemplateRenderIgnoresExtraVars(t *testing.T) {
	tpl := Template{Subject: "plain", HTML: "body", Text: "body"}

	subject, html, text := tpl.Render(map[string]string{"surplus": "x"})

	require.Equal(t, "plain", subject)
	require.Equal(t, "body", html)
	require.Equal(t, "body", text)
}

func TestInvitationTemplateVariables(t *testing.T) {
	vars := map[string]string{
		"tenantName":     "Northside High",
		"inviterName":    "Pat Admin",
		"role":           "COUNSELOR",
		"invitationUrl":  "https://app.example.com/invite/abc",
		"expirationDate": "2026-09-06",
		"adminEmail":     "admin@school.edu",
		"recipientEmail": "new@school.edu",
		"appName":        "CampusKeep",
		"currentYear":    "2026",
	}

	subject, html, text := InvitationTemplate.Render(vars)

	require.Contains(t, subject, "Northside High")
	for _, v := range vars {
		require.Contains(t, html, v)
	}
	require.Contains(t, text, "https://app.example.com/invite/abc")
	require.NotContains(t, html, "{{")
	require.NotContains(t, text, "{{")
	require.NotContains(t, subject, "{{")
}

func TestSetupConfirmationTemplateVariables(t *testing.T) {
	subject, html, text := SetupConfirmationTemplate.Render(map[string]string{
		"tenantName":   "Northside High",
		"adminName":    "Pat Admin",
		"dashboardUrl": "https://northside.example.com/dashboard",
		"appName":      "CampusKeep",
		"adminEmail":   "admin@school.edu",
		"currentYear":  "2026",
	})

	require.Contains(t, subject, "Northside High")
	require.Contains(t, html, "https://northside.example.com/dashboard")
	require.Contains(t, text, "https://northside.example.com/dashboard")
	require.False(t, strings.Contains(html, "{{"), "template left unresolved placeholders: %s", html)
	require.False(t, strings.Contains(text, "{{"))
}
