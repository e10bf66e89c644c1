// Package auth provides bearer-token authentication for the sesame HTTP API.
//
// Tokens are HS256 JWTs minted offline by the CLI (sesameserver token) and
// validated by signature only. There are two roles:
//   - user: read state, control locks, toggle advertising, disconnect peers
//   - admin: everything a user can do plus the destructive server reset
package auth
