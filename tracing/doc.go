// Package tracing decorates the broker boundary with OpenTelemetry spans and carries
// the call context across it.
//
// On publish the trace header and the caller identity are written into the message
// headers. On delivery they are read back, a consumer span is opened and a fresh
// call context is installed for the handler. Trace headers follow the
// "00-<trace-id>-<span-id>-01" convention. Ids that are not W3C sized are still
// carried verbatim so services that mint short ids stay correlated.
package tracing
