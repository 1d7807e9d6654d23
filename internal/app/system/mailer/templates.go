// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// ConnectionEmailData holds data for relationship notification emails.
type ConnectionEmailData struct {
	SiteName     string
	FromName     string // person who acted
	ActionURL    string
	ExpiresIn    string // invitations only, e.g. "14 days"
	Accepted     bool   // responses only
	Relationship string // relationship id, for reference
}

// BuildConnectionRequestEmail tells a registered client that a coach wants to connect.
func BuildConnectionRequestEmail(data ConnectionEmailData) Email {
	text := fmt.Sprintf("%s would like to connect with you as your coach on %s.\n\n"+
		"Review the request here:\n%s\n", data.FromName, data.SiteName, data.ActionURL)
	return Email{
		Subject:  fmt.Sprintf("%s wants to connect on %s", data.FromName, data.SiteName),
		TextBody: text,
		HTMLBody: render(layoutData{
			SiteName: data.SiteName,
			Lead:     fmt.Sprintf("%s would like to connect with you as your coach.", data.FromName),
			Button:   "Review request",
			URL:      data.ActionURL,
		}),
	}
}

// BuildInvitationEmail invites an unregistered address to sign up and connect.
func BuildInvitationEmail(data ConnectionEmailData) Email {
	text := fmt.Sprintf("%s invited you to join %s as their coaching client.\n\n"+
		"Create your account here:\n%s\n\nThis invitation expires in %s.\n",
		data.FromName, data.SiteName, data.ActionURL, data.ExpiresIn)
	return Email{
		Subject:  fmt.Sprintf("You're invited to %s", data.SiteName),
		TextBody: text,
		HTMLBody: render(layoutData{
			SiteName: data.SiteName,
			Lead:     fmt.Sprintf("%s invited you to join as their coaching client.", data.FromName),
			Button:   "Create account",
			URL:      data.ActionURL,
			Footnote: fmt.Sprintf("This invitation expires in %s.", data.ExpiresIn),
		}),
	}
}

// BuildConnectionResponseEmail tells a coach that a client accepted or declined.
func BuildConnectionResponseEmail(data ConnectionEmailData) Email {
	verb := "declined"
	if data.Accepted {
		verb = "accepted"
	}
	text := fmt.Sprintf("%s %s your connection request on %s.\n", data.FromName, verb, data.SiteName)
	return Email{
		Subject:  fmt.Sprintf("%s %s your request", data.FromName, verb),
		TextBody: text,
		HTMLBody: render(layoutData{
			SiteName: data.SiteName,
			Lead:     fmt.Sprintf("%s %s your connection request.", data.FromName, verb),
			Button:   "Open " + data.SiteName,
			URL:      data.ActionURL,
		}),
	}
}

type layoutData struct {
	SiteName string
	Lead     string
	Button   string
	URL      string
	Footnote string
}

var layout = template.Must(template.New("layout").Parse(layoutHTMLTemplate))

func render(data layoutData) string {
	var buf bytes.Buffer
	_ = layout.Execute(&buf, data)
	return buf.String()
}

const layoutHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.SiteName}}</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px 32px 24px; text-align: center; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #0f766e;">{{.SiteName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              <p style="margin: 0 0 24px; font-size: 16px; color: #374151; line-height: 1.5;">{{.Lead}}</p>
              {{if .URL}}
              <table role="presentation" width="100%" cellspacing="0" cellpadding="0">
                <tr>
                  <td align="center">
                    <a href="{{.URL}}" style="display: inline-block; padding: 14px 32px; background-color: #0f766e; color: #ffffff; text-decoration: none; font-size: 16px; font-weight: 500; border-radius: 6px;">{{.Button}}</a>
                  </td>
                </tr>
              </table>
              {{end}}
              {{if .Footnote}}
              <p style="margin: 24px 0 0; font-size: 13px; color: #9ca3af; text-align: center;">{{.Footnote}}</p>
              {{end}}
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
