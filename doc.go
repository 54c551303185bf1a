/*
Package eventdemo is an in-process event registry and dispatcher, with payloads validated against a schema before any handler sees them.

The core is in the dispatch package, which has no knowledge of HTTP.
Everything else composes around it:

  - dispatch/schemafile loads event schemas from HCL files.
  - eventhttp lets HTTP handlers emit events that are dispatched once the response is written.
  - server exposes the registry over HTTP, and signup provides the demo USER_SIGNED_UP and USER_ACTIVATED events.
  - cmd/eventdemo is the command line entry point, configured with EVENTDEMO_ environment variables and flags.
*/
package eventdemo
