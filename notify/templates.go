package notify

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	identity "github.com/MrEthical07/goIdentity"
)

var defaultBodies = map[string]string{
	identity.TemplateMagicSession: `Hello {{.user}},

Follow this link to sign in to {{.project}}:

{{.redirect}}
{{if .phrase}}
Make sure the security phrase in the sign-in page reads: {{.phrase}}
{{end}}
This link was requested from {{.agentClient}} on {{.agentOs}} ({{.ip}}, {{.country}}). If you didn't request it, ignore this email.
`,
	identity.TemplateOTPSession: `Hello {{.user}},

Your {{.project}} sign-in code is {{.otp}}.
{{if .phrase}}
Security phrase: {{.phrase}}
{{end}}
Requested from {{.agentClient}} on {{.agentOs}} ({{.ip}}, {{.country}}).
`,
	identity.TemplateRecovery: `Hello {{.user}},

Follow this link to reset your {{.project}} password:

{{.redirect}}

If you didn't ask to reset your password, ignore this email.
`,
	identity.TemplateVerification: `Hello {{.user}},

Follow this link to verify your email address for {{.project}}:

{{.redirect}}
`,
	identity.TemplateMFAChallenge: `Hello {{.user}},

Your {{.project}} verification code is {{.otp}}.

Requested from {{.agentClient}} on {{.agentOs}} ({{.ip}}, {{.country}}).
`,
	identity.TemplateSMSSession: `{{.otp}} is your {{.project}} sign-in code.`,
	identity.TemplateSMSVerify:  `{{.otp}} is your {{.project}} verification code.`,
}

// Templates renders message bodies by template name.
type Templates struct {
	set map[string]*template.Template
}

// DefaultTemplates returns the built-in plain-text bodies.
func DefaultTemplates() *Templates {
	t := &Templates{set: make(map[string]*template.Template, len(defaultBodies))}
	for name, body := range defaultBodies {
		t.set[name] = template.Must(template.New(name).Option("missingkey=zero").Parse(body))
	}
	return t
}

// LoadTemplates overrides the defaults with every <name>.txt file in dir.
func LoadTemplates(dir string) (*Templates, error) {
	t := DefaultTemplates()
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(path), ".txt")
		tpl, err := template.New(name).Option("missingkey=zero").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		t.set[name] = tpl
	}
	return t, nil
}

// Render executes the named template with vars.
func (t *Templates) Render(name string, vars map[string]string) (string, error) {
	tpl, ok := t.set[name]
	if !ok {
		return "", fmt.Errorf("notify: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", name, err)
	}
	return buf.String(), nil
}
