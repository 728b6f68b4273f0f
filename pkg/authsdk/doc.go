/*
Package authsdk manages the console operator's session against the SACCO ESB
auth endpoints.

# Overview

A Session logs in with a username and password, keeps the access/refresh
token pair in memory and writes it through to a storex.Store so that the
console can resume after a restart:

	client := authsdk.NewClient("https://esb.example.com", nil)
	session := authsdk.NewSession(client, store, authsdk.SessionOptions{Logger: logger})

	if !session.Restore(ctx) {
		result, err := session.Login(ctx, authsdk.Credentials{Username: u, Password: p})
		if err != nil {
			fmt.Println(authsdk.Message(err))
		}
	}

# Authenticated requests

Transport is an http.RoundTripper that attaches the bearer token to every
API call. When the ESB answers 401 it asks the Refresher for a new token and
replays the request once:

	refresher := authsdk.NewRefresher(session, logger)
	httpClient := &http.Client{Transport: authsdk.NewTransport(session, refresher, nil)}

The Refresher runs at most one refresh at a time. Requests that fail while a
refresh is in flight wait for it and share its outcome. A 401 that arrives
after a refresh already completed is retried with the current token without
a second call. A failed refresh logs the session out and every waiter gets an
error wrapping ErrRefreshFailed.

# Session cache

Cache holds the user's permissions, the token expiry and the last activity
time under the cached_user_info key. Keeper polls it, refreshing the token
ahead of expiry and ending sessions that idled past SessionTimeout or aged
past MaxAge.

# Errors

Login and refresh failures are *AuthError values whose Message is safe to
show the operator. Message(err) extracts it from any error returned here.
*/
package authsdk
