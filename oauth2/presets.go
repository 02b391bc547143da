package oauth2

import (
	"bytes"
	"encoding/json"
	"errors"

	identity "github.com/MrEthical07/goIdentity"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

type preset struct {
	endpoint    xoauth2.Endpoint
	userInfoURL string
	emailsURL   string
	scopes      []string
	decode      ProfileDecoder
	authParams  []xoauth2.AuthCodeOption
}

// Providers lists the names New recognises without explicit endpoints.
var Providers = []string{"github", "google", "microsoft", "facebook"}

func presetFor(name string, cfg identity.OAuth2ProviderConfig) (preset, bool) {
	switch name {
	case "github":
		return preset{
			endpoint:    endpoints.GitHub,
			userInfoURL: "https://api.github.com/user",
			emailsURL:   "https://api.github.com/user/emails",
			scopes:      []string{"user:email"},
			decode:      decodeGitHub,
		}, true
	case "google":
		return preset{
			endpoint:    endpoints.Google,
			userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			scopes:      []string{"openid", "email", "profile"},
			decode:      decodeOIDC,
			authParams:  []xoauth2.AuthCodeOption{xoauth2.AccessTypeOffline, xoauth2.SetAuthURLParam("prompt", "consent")},
		}, true
	case "microsoft":
		tenant := cfg.Tenant
		if tenant == "" {
			tenant = "common"
		}
		return preset{
			endpoint:    endpoints.AzureAD(tenant),
			userInfoURL: "https://graph.microsoft.com/v1.0/me",
			scopes:      []string{"offline_access", "User.Read"},
			decode:      decodeMicrosoft,
		}, true
	case "facebook":
		return preset{
			endpoint:    endpoints.Facebook,
			userInfoURL: "https://graph.facebook.com/me?fields=id,name,email",
			scopes:      []string{"email"},
			decode:      decodeFacebook,
		}, true
	}
	return preset{}, false
}

// GitHub returns a profile email only when it is public; the rest comes
// from the emails endpoint.
func decodeGitHub(body []byte) (identity.OAuth2User, error) {
	var p struct {
		ID    json.Number `json:"id"`
		Login string      `json:"login"`
		Name  string      `json:"name"`
		Email string      `json:"email"`
	}
	if err := decodeJSON(body, &p); err != nil {
		return identity.OAuth2User{}, err
	}
	name := p.Name
	if name == "" {
		name = p.Login
	}
	// A public profile email is not proof of ownership.
	return identity.OAuth2User{ID: p.ID.String(), Email: p.Email, Name: name}, nil
}

func decodeMicrosoft(body []byte) (identity.OAuth2User, error) {
	var p struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := decodeJSON(body, &p); err != nil {
		return identity.OAuth2User{}, err
	}
	email := p.Mail
	if email == "" {
		email = p.UserPrincipalName
	}
	return identity.OAuth2User{ID: p.ID, Email: email, Name: p.DisplayName}, nil
}

func decodeFacebook(body []byte) (identity.OAuth2User, error) {
	var p struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeJSON(body, &p); err != nil {
		return identity.OAuth2User{}, err
	}
	// Graph only returns confirmed addresses.
	return identity.OAuth2User{ID: p.ID, Email: p.Email, Name: p.Name, Verified: p.Email != ""}, nil
}

// primaryEmail picks the primary verified address, then any verified one,
// then the first listed.
func primaryEmail(body []byte) (string, bool, error) {
	var list []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := decodeJSON(body, &list); err != nil {
		return "", false, err
	}
	if len(list) == 0 {
		return "", false, errors.New("no email addresses")
	}
	for _, e := range list {
		if e.Primary && e.Verified {
			return e.Email, true, nil
		}
	}
	for _, e := range list {
		if e.Verified {
			return e.Email, true, nil
		}
	}
	return list[0].Email, false, nil
}

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}
