package eventhandler

import "errors"

// errNoDHT is returned by query-issuing handlers when the handler was
// constructed without a DHT (e.g. in single-process tests).
var errNoDHT = errors.New("eventhandler: no dht configured")

// errNoProviders is delivered to a FindResult when a provider search comes
// back empty.
var errNoProviders = errors.New("eventhandler: no providers found")
