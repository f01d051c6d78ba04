// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter calls
// so every endpoint emits the same JSON envelopes ({"error": ...} and
// {"message": ...}) with a consistent Content-Type.
package httputil
