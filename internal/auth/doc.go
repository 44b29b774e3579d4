// Package auth implements the multi-account OAuth2 credential lifecycle:
// persistent token storage, the authorization-code grant operations, the
// renewal policy that decides between reuse, refresh and re-authorization,
// and the callback correlator that matches provider redirects to waiting
// requests.
//
// All components are explicitly constructed and injected; the package holds
// no global state.
package auth
