// Package toolserver negotiates connections to external tool servers and
// hands back invokable tool handles. Binding is bounded by a per-server
// timeout and a total timeout; servers that fail to bind are reported but do
// not abort the whole bind, so a session can start with whatever subset came
// up. Connections are owned by the session that bound them and are released
// through the combined teardown returned from Bind.
package toolserver
