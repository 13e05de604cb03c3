// Command yotohero narrates stories and adds them to the shared story card
// from the terminal. It signs in with the same PKCE flow as the web app and
// keeps the token pair in a local file.
package main
