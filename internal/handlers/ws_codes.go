// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the realtime handler.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Ticket or session was missing, invalid or expired.
	FeedUnavailableError  = 3002 // The change source stopped and the stream cannot continue.
)
