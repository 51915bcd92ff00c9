// Package httpapi exposes the authentication endpoints over REST.
//
// Every response, success or failure, uses the shared envelope shape so
// clients parse one format. Handlers never reveal whether an email
// exists: a wrong password and an unknown account produce byte-identical
// responses.
package httpapi
