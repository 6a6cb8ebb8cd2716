package render

import "fmt"

// htmlWrap places rendered inner HTML inside the shared email chrome. Only
// message types where HTML adds value provide an inner body; everything else
// ships plain text only.
func htmlWrap(title, inner string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>%s</title>
</head>
<body style="margin:0;padding:0;background:#0d1117;font-family:'Segoe UI',system-ui,sans-serif;">
  <table width="100%%" cellpadding="0" cellspacing="0" style="background:#0d1117;padding:40px 0;">
    <tr><td align="center">
      <table width="480" cellpadding="0" cellspacing="0"
             style="background:#161b22;border:1px solid #30363d;border-radius:12px;overflow:hidden;">
        <tr>
          <td style="background:linear-gradient(135deg,#1a4731,#0d2818);
                     padding:28px 32px;text-align:center;border-bottom:1px solid #30363d;">
            <div style="color:#58a6ff;font-size:22px;font-weight:700;
                        letter-spacing:3px;text-transform:uppercase;">
              Swarm Blackjack
            </div>
            <div style="color:#8b949e;font-size:12px;margin-top:4px;letter-spacing:1px;">
              Polyglot Microservices · Zero Trust · PoC
            </div>
          </td>
        </tr>
        <tr>
          <td style="padding:32px;">
%s
          </td>
        </tr>
        <tr>
          <td style="padding:16px 32px 24px;border-top:1px solid #21262d;text-align:center;">
            <div style="color:#4a5568;font-size:11px;">
              This is an automated message from Swarm Blackjack.
              If you didn't request this, you can safely ignore it.
            </div>
          </td>
        </tr>
      </table>
    </td></tr>
  </table>
</body>
</html>`, title, inner)
}

const verifyEmailInner = `        <h2 style="color:#e6edf3;margin:0 0 16px;font-size:20px;">Verify your email</h2>
        <p style="color:#8b949e;margin:0 0 24px;line-height:1.6;">
          Thanks for registering. Click the button below to verify your email address
          and activate your account.
        </p>
        <div style="text-align:center;margin:28px 0;">
          <a href="%s"
             style="display:inline-block;padding:14px 32px;
                    background:#1f6feb;color:#ffffff;
                    text-decoration:none;border-radius:8px;
                    font-weight:700;font-size:15px;letter-spacing:0.5px;">
            Verify Email Address
          </a>
        </div>
        <p style="color:#4a5568;font-size:12px;margin:16px 0 0;text-align:center;">
          Link expires in %s · One-time use only
        </p>
        <p style="color:#4a5568;font-size:12px;margin:8px 0 0;text-align:center;">
          Or copy this URL: <span style="color:#58a6ff;">%s</span>
        </p>`

const magicLinkInner = `        <h2 style="color:#e6edf3;margin:0 0 16px;font-size:20px;">Your setup link</h2>
        <p style="color:#8b949e;margin:0 0 24px;line-height:1.6;">
          Click the button below to complete your account setup.
        </p>
        <div style="text-align:center;margin:28px 0;">
          <a href="%s"
             style="display:inline-block;padding:14px 32px;
                    background:#1f6feb;color:#ffffff;
                    text-decoration:none;border-radius:8px;
                    font-weight:700;font-size:15px;">
            Complete Setup
          </a>
        </div>
        <p style="color:#4a5568;font-size:12px;margin:16px 0 0;text-align:center;">
          Expires in %s · One-time use only
        </p>`
