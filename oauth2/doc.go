// Package oauth2 implements goIdentity.OAuth2Provider over
// golang.org/x/oauth2 for the authorization-code flow.
//
// [New] knows github, google, microsoft and facebook. Any other name is a
// generic OpenID Connect style provider and needs AuthURL, TokenURL and
// UserInfoURL in its configuration. Endpoint fields in the configuration
// always override a preset.
package oauth2
