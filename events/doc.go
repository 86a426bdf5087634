// Package events emits application lifecycle events and, optionally, forwards
// them to a remote collector.
//
// The HTTP and gRPC adapters call a Lifecycle when the instrumented server
// starts serving and when it shuts down. The openapm facade implements
// Lifecycle by building a DomainEvent and handing it to an Emitter:
//
//	em := events.NewEmitter()
//	em.On(events.ApplicationStarted, func(ctx context.Context, kind events.Kind, ev events.DomainEvent) error {
//	    log.Printf("%s %s", ev.EventName, ev.EventState)
//	    return nil
//	})
//	em.Emit(ctx, events.ApplicationStarted, events.NewDomainEvent(events.ApplicationStarted, meta, time.Now()))
//
// When a refresh token is configured, a Forwarder is registered as a
// listener. Each send obtains an access token (cached until it expires) by
// POSTing the refresh token to /api/v4/oauth/access_token, then PUTs the
// event as JSON to /api/v4/organizations/{org}/domain_events with the header
//
//	X-LAST9-API-TOKEN: Bearer <access token>
package events
