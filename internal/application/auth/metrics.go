package auth

import "expvar"

var (
	codesSent      = expvar.NewInt("auth_codes_sent")
	codesVerified  = expvar.NewInt("auth_codes_verified")
	codeFailures   = expvar.NewInt("auth_code_failures")
	tokensIssued   = expvar.NewInt("auth_tokens_issued")
	tokenRefreshes = expvar.NewInt("auth_token_refreshes")
)
