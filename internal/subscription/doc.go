// Package subscription gates authentication behind a subscription check.
//
// The service proves its subscription to an external dashboard by presenting
// its own app credential. The dashboard answers with an API auth token that is
// cached for later checks. Token lifecycle:
//
//	NoToken  -> self-present -> Verified
//	HasToken -> cached check -> Verified
//	HasToken -> expired (403) -> NoToken -> one retry via self-presentation
//
// A 401 on the self-presentation path is fatal and never retried.
package subscription
